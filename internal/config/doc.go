// Package config provides configuration parsing for the topicsync CLI.
//
// The configuration is stored in topicsync.json, looked up in the working
// directory and its parents. Every field can also be set with a flag; flags
// win over the file.
//
// # Configuration File Structure
//
//	{
//	  "url": "ws://localhost:8765/ws",
//	  "logLevel": "info",
//	  "debugAddr": "localhost:9090",
//	  "handshakeTimeout": "10s",
//	  "subscriptions": [
//	    {"name": "doc", "kind": "string"},
//	    {"name": "todos", "kind": "list"}
//	  ],
//	  "client": {
//	    "queueSize": 256,
//	    "writeTimeout": "10s",
//	    "maxMessageSize": 1048576,
//	    "maxValueDepth": 64
//	  }
//	}
//
// # Usage
//
//	cfg, err := config.LoadFromWorkingDir()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Server:", cfg.URL)
package config
