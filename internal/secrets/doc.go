// Package secrets redacts credentials from database error text before it is
// logged, embedded in a plan, or sent to the advisor.
//
// Connector error messages routinely carry DSNs, GRANT/CREATE USER
// statements and environment dumps. Rules are regular expressions; when a
// rule has a capture group only the group is replaced, so the surrounding
// statement stays readable ("IDENTIFIED BY '[REDACTED]'").
package secrets
