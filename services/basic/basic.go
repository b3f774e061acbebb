package main

import (
	"context"
	"net/http"

	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"

	"github.com/gorilla/mux"

	"github.com/hicsail/anchor/core/access"
	"github.com/hicsail/anchor/core/backend"
	"github.com/hicsail/anchor/core/logger"
	"github.com/hicsail/anchor/core/store"
	"github.com/hicsail/anchor/core/store/mongodb"
	"github.com/hicsail/anchor/core/store/postgres"
)

var configurationJSON string = `
{
	"resources": [
	  {
		"resource": "item",
		"description": "inventory item, readable by any signed-in user",
		"schema": {
			"type": "object",
			"required": ["name"],
			"properties": {
				"name": { "type": "string", "minLength": 1 },
				"quantity": { "type": "integer", "minimum": 0 }
			}
		},
		"default": { "quantity": 0 },
		"settings": {
			"timestamps": true,
			"user_id": true,
			"post_scope": ["admin"],
			"update_scope": ["admin"]
		}
	  },
	  {
		"resource": "message",
		"settings": {
			"timestamps": true,
			"user_id": true
		}
	  }
	]
}
`

// Service holds the configuration for this service
//
// use POSTGRES="host=localhost port=5432 user=postgres password=docker dbname=postgres sslmode=disable"
// or MONGODB="mongodb://localhost:27017", plus JWT_SECRET for token validation.
type Service struct {
	Postgres  string `env:"POSTGRES,optional" description:"the connection string for the Postgres DB"`
	Mongodb   string `env:"MONGODB,optional" description:"the connection string for MongoDB, takes precedence over Postgres"`
	JwtSecret string `env:"JWT_SECRET,required" description:"the HMAC secret for bearer token validation"`
	JwtIssuer string `env:"JWT_ISSUER,optional" description:"the accepted token issuer"`
	Port      string `env:"PORT,default=3000" description:"the port to listen on"`
}

func main() {
	logger.InitLogger(logrus.InfoLevel)
	rlog := logger.Default()

	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		rlog.Fatalln(err)
	}

	var documentStore store.Store
	switch {
	case service.Mongodb != "":
		s, err := mongodb.Connect(context.Background(), service.Mongodb, "basic")
		if err != nil {
			rlog.Fatalln(err)
		}
		defer s.Close(context.Background())
		documentStore = s
	case service.Postgres != "":
		s, err := postgres.Open(service.Postgres, "basic")
		if err != nil {
			rlog.Fatalln(err)
		}
		defer s.Close()
		documentStore = s
	default:
		rlog.Fatalln("neither POSTGRES nor MONGODB configured")
	}

	router := mux.NewRouter()
	logger.AddRequestID(router)
	router.Use(access.NewJwtMiddleware(&access.JwtMiddlewareBuilder{
		Secret: service.JwtSecret,
		Issuer: service.JwtIssuer,
	}))

	backend.MustNew(&backend.Builder{
		Config:               configurationJSON,
		Store:                documentStore,
		Router:               router,
		AuthorizationEnabled: true,
		CORS:                 true,
		Compression:          true,
	})

	rlog.Infoln("listen on port :" + service.Port)
	rlog.Fatalln(http.ListenAndServe(":"+service.Port, router))
}
