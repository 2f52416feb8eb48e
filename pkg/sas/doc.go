// Package sas mints and inspects shared access signature (SAS) tokens.
//
// A token has the form
//
//	SharedAccessSignature sr=<scope>&sig=<signature>&se=<expiry>[&skn=<key name>]
//
// where scope is the URL-encoded resource URI, expiry is in seconds since the
// Unix epoch and signature is the URL-encoded base64 HMAC-SHA256 of
// "<scope>\n<expiry>" keyed with the base64-decoded device key.
package sas
