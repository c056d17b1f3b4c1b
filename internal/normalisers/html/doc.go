// Package html extracts readable text from HTML procedure exports,
// dropping scripts, styles and markup.
package html
