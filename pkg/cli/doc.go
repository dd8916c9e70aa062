// Package cli implements the deptree command-line tool.
//
// # Commands
//
// resolve: resolve a tree in-process against a registry
//
//	deptree resolve -package express -version ^4.0.0
//	deptree resolve -package @babel/core -registry http://localhost:4873 -format json
//
// fetch: ask a running deptree service for a tree
//
//	deptree fetch -package express -server http://localhost:3000
//
// Both commands print either nested JSON or an indented tree:
//
//	express@4.18.2
//	├── debug@2.6.9
//	│   └── ms@2.0.0
//	└── ms@2.1.3
//
// Progress and registry retries are logged to stderr with logrus; -log-level
// controls verbosity.
package cli
