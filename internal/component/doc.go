// Package component is the registry of component types.
//
// Every component name a button can carry is registered here by exactly one
// module, together with display metadata, a default value and an optional
// JSON Schema. The schema is used for two things: validating values written
// through the control protocol, and describing the editable fields of a
// component to clients (see UIValues).
package component
