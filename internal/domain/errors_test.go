package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsFatal(t *testing.T) {
	cause := errors.New("boom")

	require.True(t, IsFatal(&ScrapeError{Err: cause}))
	require.True(t, IsFatal(fmt.Errorf("sync: %w", &StoreReadError{Err: cause})))
	require.False(t, IsFatal(&StoreWriteError{CustomerID: "1", Err: cause}))
	require.False(t, IsFatal(cause))

	require.ErrorIs(t, &StoreWriteError{CustomerID: "1", Err: ErrCustomerNotFound}, ErrCustomerNotFound)
}

func TestColumns(t *testing.T) {
	cols := Columns{Name: "full_name"}.WithDefaults()
	require.Equal(t, "full_name", cols.Name)
	require.Equal(t, "plano_atual", cols.Column(FieldPlan))
	require.Equal(t, "status_assinatura", cols.Column(FieldStatus))
	require.Equal(t, "ultima_sincronizacao", cols.Column(FieldLastContact))
	require.Equal(t, "", cols.Column("telefone"))
}
