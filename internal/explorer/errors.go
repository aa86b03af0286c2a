package explorer

import (
	"errors"
	"fmt"

	"github.com/freeeve/prepgraph/internal/graph"
)

// ErrNotFound is wrapped when the source has no such position.
var ErrNotFound = errors.New("position not found")

// DataSourceError is a failed lookup of one position. Status is the HTTP
// status when there was one.
type DataSourceError struct {
	Key    graph.PositionKey
	Status int
	Err    error
}

func (e *DataSourceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("explorer %q: status %d: %v", e.Key, e.Status, e.Err)
	}
	return fmt.Sprintf("explorer %q: %v", e.Key, e.Err)
}

func (e *DataSourceError) Unwrap() error { return e.Err }

// AsDataSourceError wraps err unless it already is one.
func AsDataSourceError(key graph.PositionKey, err error) error {
	if err == nil {
		return nil
	}
	var dse *DataSourceError
	if errors.As(err, &dse) {
		return err
	}
	return &DataSourceError{Key: key, Err: err}
}
