package memstore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/aluiziolira/bookroad/store"
	"github.com/aluiziolira/bookroad/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}

func TestConcurrentUpserts(t *testing.T) {
	ctx := context.Background()
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.UpsertBook(ctx, storetest.Book(fmt.Sprintf("979%010d", i%10)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	books, err := s.BooksWithTOC(ctx)
	require.NoError(t, err)
	assert.Len(t, books, 10)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.UpsertBook(ctx, storetest.Book("9791162241882"))
	require.NoError(t, err)

	got, err := s.GetBook(ctx, "9791162241882")
	require.NoError(t, err)
	*got.PageCount = 1
	got.Title = "changed"

	again, err := s.GetBook(ctx, "9791162241882")
	require.NoError(t, err)
	assert.Equal(t, 512, *again.PageCount)
	assert.NotEqual(t, "changed", again.Title)
}
