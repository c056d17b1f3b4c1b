// Package connectors holds the adapters that discover source documents
// outside the process. The filesystem connector finds procedure files on
// disk and watches directories for changes.
package connectors
