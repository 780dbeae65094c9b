package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/Marketly/app/models"
)

func TestProductFilterNormalize(t *testing.T) {
	tests := []struct {
		name      string
		in        ProductFilter
		wantPage  int
		wantLimit int
		wantSort  string
	}{
		{"defaults", ProductFilter{}, 1, DefaultPageLimit, SortLatest},
		{"clamp limit", ProductFilter{Page: 2, Limit: 500, SortBy: SortPriceLow}, 2, MaxPageLimit, SortPriceLow},
		{"unknown sort", ProductFilter{Page: -3, Limit: 5, SortBy: "oldest"}, 1, 5, SortLatest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.in
			f.Normalize()
			assert.Equal(t, tt.wantPage, f.Page)
			assert.Equal(t, tt.wantLimit, f.Limit)
			assert.Equal(t, tt.wantSort, f.SortBy)
		})
	}

	f := ProductFilter{Page: 3, Limit: 12}
	assert.Equal(t, 24, f.Offset())
}

func TestLikePatternEscapesWildcards(t *testing.T) {
	assert.Equal(t, "%bike%", likePattern("  Bike "))
	assert.Equal(t, `%50\%\_off%`, likePattern("50%_off"))
}

func TestBuildCategoryTree(t *testing.T) {
	one, two := uint(1), uint(2)
	missing := uint(99)
	flat := []models.Category{
		{ID: 1, Name: "Electronics"},
		{ID: 2, Name: "Vehicles"},
		{ID: 3, Name: "Phones", ParentID: &one},
		{ID: 4, Name: "Bikes", ParentID: &two},
		{ID: 5, Name: "Laptops", ParentID: &one},
		{ID: 6, Name: "Orphan", ParentID: &missing},
	}

	tree := BuildCategoryTree(flat)
	require.Len(t, tree, 2)
	assert.Equal(t, "Electronics", tree[0].Name)
	require.Len(t, tree[0].Children, 2)
	assert.Equal(t, "Phones", tree[0].Children[0].Name)
	assert.Equal(t, "Laptops", tree[0].Children[1].Name)
	require.Len(t, tree[1].Children, 1)
	assert.Equal(t, "Bikes", tree[1].Children[0].Name)
}
