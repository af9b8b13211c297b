package enums

import "fmt"

// DatastoreEngine names the backend hosting tenant namespaces.
type DatastoreEngine string

const (
	DatastoreEnginePostgres DatastoreEngine = "postgres"
	DatastoreEngineMongo    DatastoreEngine = "mongo"
)

var validDatastoreEngines = []DatastoreEngine{
	DatastoreEnginePostgres,
	DatastoreEngineMongo,
}

// String implements fmt.Stringer.
func (d DatastoreEngine) String() string {
	return string(d)
}

// IsValid reports whether the value is known.
func (d DatastoreEngine) IsValid() bool {
	for _, candidate := range validDatastoreEngines {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDatastoreEngine converts raw input into a DatastoreEngine.
func ParseDatastoreEngine(value string) (DatastoreEngine, error) {
	for _, candidate := range validDatastoreEngines {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid datastore engine %q", value)
}
