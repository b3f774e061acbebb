// Command embed generates a Go source file with the JSON files of the current
// directory as string constants. This is handy for services which maintain
// their resource configuration in standalone JSON files.
//
// A file configuration.json becomes the constant configurationJSON in the
// generated file generated_embedded_json.go.
package main

import (
	"flag"
	"io"
	"os"
	"strings"
)

var fileType = flag.String("type", "json", "the type of files to embed")

func main() {
	flag.Parse()

	suffix := "." + *fileType
	goSuffix := strings.ToUpper(*fileType)
	entries, err := os.ReadDir(".")
	if err != nil {
		panic(err)
	}
	out, err := os.Create("generated_embedded_" + *fileType + ".go")
	if err != nil {
		panic(err)
	}
	defer out.Close()

	out.Write([]byte("package main\n"))
	out.Write([]byte("\nconst (\n"))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		f, err := os.Open(entry.Name())
		if err != nil {
			panic(err)
		}
		out.Write([]byte(strings.TrimSuffix(entry.Name(), suffix) + goSuffix + " = `"))
		io.Copy(out, f)
		out.Write([]byte("`\n"))
		f.Close()
	}
	out.Write([]byte(")\n"))
}
