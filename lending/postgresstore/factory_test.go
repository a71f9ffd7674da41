package postgresstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pkleindienst/library-lending-go/lending/postgresstore"
)

func Test_NewStore_Error_NilConnection(t *testing.T) {
	// act + assert
	_, err := postgresstore.NewStoreFromPGXPool(nil)
	assert.ErrorIs(t, err, postgresstore.ErrNilDatabaseConnection)

	_, err = postgresstore.NewStoreFromSQLDB(nil)
	assert.ErrorIs(t, err, postgresstore.ErrNilDatabaseConnection)

	_, err = postgresstore.NewStoreFromSQLX(nil)
	assert.ErrorIs(t, err, postgresstore.ErrNilDatabaseConnection)
}

func Test_WithTableNames_Error_EmptyName(t *testing.T) {
	// arrange
	incomplete := postgresstore.TableNames{Titles: "catalog_titles", Members: "", Loans: "loan_ledger"}

	// act: the option must fail during construction, which needs a non-nil
	// handle, so exercise it through the option func directly
	var store postgresstore.Store
	err := postgresstore.WithTableNames(incomplete)(&store)

	// assert
	assert.ErrorIs(t, err, postgresstore.ErrEmptyTableNameSupplied)
}
