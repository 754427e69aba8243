// Package output renders command results for docsnap-cli.
//
// Results can be printed as aligned tables, indented JSON or YAML. The
// table formatter understands a "table" struct tag on result types:
//
//	Size int64     `json:"size" table:"bytes"`  // 1.2 MB
//	Modified time  `json:"modified" table:"ago"` // 3 hours ago
//	Checksum string `json:"checksum" table:"wide"` // only with --wide
//	Internal string `table:"-"`                  // never shown
//
// Spinner gives feedback on slow calls and stays silent when the
// output is not a terminal.
package output
