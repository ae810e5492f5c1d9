package model

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewID generates a new ULID string for use as an entity identifier.
func NewID() string {
	return ulid.Make().String()
}

// SampleID derives a stable identifier for a sample dataset from its file
// name, so repeated sample listings produce the same ids.
func SampleID(fileName string) string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(fileName)).String()
}
