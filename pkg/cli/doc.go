// Package cli implements the mockfleet command line.
//
//	mockfleet start     run every service in a directory, with hot reload
//	mockfleet validate  check definitions without starting anything
//	mockfleet logs      read or follow request logs from a running process
//	mockfleet certs     write a self-signed development certificate
//	mockfleet version   print build information
package cli
