package search

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockIndex struct {
	mock.Mock
}

func (m *mockIndex) Search(ctx context.Context, req Request) (*Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Result), args.Error(1)
}

func TestService_Search_UsesIndex(t *testing.T) {
	idx := new(mockIndex)
	svc := NewService(idx, nil)

	want := &Result{Engine: EngineOpenSearch, Total: 1, Hits: []Hit{{EpigraphID: 3, Title: "RES 4176", Score: 9.2}}}
	idx.On("Search", mock.Anything, mock.Anything).Return(want, nil).Once()

	got, err := svc.Search(context.Background(), Request{Query: "almaqah"})
	require.NoError(t, err)
	assert.Equal(t, want, got)
	idx.AssertExpectations(t)
}

func TestService_Search_FallsBackWhenIndexErrors(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	idx := new(mockIndex)
	idx.On("Search", mock.Anything, mock.Anything).
		Return(nil, errors.New("connection refused")).Once()

	dbMock.ExpectQuery("SELECT e.id, e.title, COUNT\\(\\*\\) OVER\\(\\) AS total").
		WithArgs("almaqah", 100, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "total"}).
			AddRow(3, "RES 4176", 1))

	svc := NewService(idx, NewFallback(db))

	got, err := svc.Search(context.Background(), Request{Query: "almaqah"})
	require.NoError(t, err)
	assert.Equal(t, EngineRelational, got.Engine)
	require.Len(t, got.Hits, 1)
	assert.Equal(t, 3, got.Hits[0].EpigraphID)
	assert.Zero(t, got.Hits[0].Score)
	assert.NoError(t, dbMock.ExpectationsWereMet())
	idx.AssertExpectations(t)
}

func TestService_Search_NoEngines(t *testing.T) {
	svc := NewService(nil, nil)
	_, err := svc.Search(context.Background(), Request{Query: "x"})
	assert.Error(t, err)
}

func TestFallback_Search_FiltersAndPagination(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dbMock.ExpectQuery("SELECT e.id, e.title, COUNT\\(\\*\\) OVER\\(\\) AS total").
		WithArgs("temple dedication", "Early Sabaic", 10, 20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "total"}).
			AddRow(1, "CIH 1", 42).
			AddRow(2, "CIH 2", 42))

	f := NewFallback(db)
	got, err := f.Search(context.Background(), Request{
		Query:     `+temple "dedication"`,
		Filters:   Filters{"period": "Early Sabaic"},
		SortField: "title",
		From:      20,
		Size:      10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.Total)
	assert.Len(t, got.Hits, 2)
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestFallback_Search_PublishedFilterOverridesDefault(t *testing.T) {
	matcher := sqlmock.QueryMatcherFunc(func(expected, actual string) error {
		if strings.Contains(actual, "dasi_published IS NOT FALSE") {
			return errors.New("default published condition must be dropped when the filter is explicit")
		}
		if !strings.Contains(actual, "e.dasi_published = $") {
			return errors.New("explicit dasi_published filter missing from query")
		}
		return nil
	})
	db, dbMock, err := sqlmock.New(sqlmock.QueryMatcherOption(matcher))
	require.NoError(t, err)
	defer db.Close()

	dbMock.ExpectQuery("").
		WithArgs("drafts", false, 100, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "total"}).
			AddRow(9, "unpublished draft", 1))

	f := NewFallback(db)
	got, err := f.Search(context.Background(), Request{
		Query:   "drafts",
		Filters: Filters{"dasi_published": false},
	})
	require.NoError(t, err)
	require.Len(t, got.Hits, 1)
	assert.Equal(t, 9, got.Hits[0].EpigraphID)
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestFallback_Search_EmptyQueryListsPublished(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dbMock.ExpectQuery("SELECT e.id, e.title, COUNT\\(\\*\\) OVER\\(\\) AS total").
		WithArgs(100, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "total"}))

	f := NewFallback(db)
	got, err := f.Search(context.Background(), Request{Query: "!!!"})
	require.NoError(t, err)
	assert.Empty(t, got.Hits)
	assert.NoError(t, dbMock.ExpectationsWereMet())
}
