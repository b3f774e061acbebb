/*Package core holds the basic types shared by the anchor packages.
 */
package core

// Operation represents one of the generic data operations, one of List, Create, Update
type Operation string

// all supported operations
const (
	OperationList   Operation = "list"
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
)
