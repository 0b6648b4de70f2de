// Package errors provides structured, actionable error messages for the
// topicsync command line.
//
// Library packages return plain sentinel errors. At the edge, the CLI turns
// them into a TopicsyncError carrying a code, a category, an explanation and
// a hint, and prints it.
//
// # Error Categories
//
//   - config: topicsync.json could not be found, parsed or validated
//   - connection: the server could not be reached or went away
//   - protocol: the server sent something the client cannot use
//   - change: a change was refused locally or by the server
//   - topic: a topic name or kind is wrong
//   - cli: a command was used incorrectly
//
// # Usage
//
//	err := errors.New("E020").
//	    WithDetail("dial tcp 127.0.0.1:8765: connect: connection refused").
//	    WithSuggestion("Start the server or pass --url")
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR E020: Connection failed
//	//
//	//   dial tcp 127.0.0.1:8765: connect: connection refused
//	//
//	//   Hint: Start the server or pass --url
//
// Classify maps any error returned by the topicsync packages to a code.
package errors
