// Package catalog manages pipeline schemas: creation, versioned updates,
// synchronous re-validation and the draft/active/deprecated lifecycle.
//
// A Catalog is also the schema store the execution manager reads from.
package catalog
