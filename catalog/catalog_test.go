package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryProviderResolve(t *testing.T) {
	p := NewMemoryProvider()
	p.PutProduct(&Product{ID: "iron_ingot", Name: "Iron Ingot", CategoryID: "metals"})

	prod, ok := p.Resolve("iron_ingot")
	require.True(t, ok)
	assert.Equal(t, "Iron Ingot", prod.Name)

	_, ok = p.Resolve("dragon_scale")
	assert.False(t, ok)
}

func TestMemoryProviderSortedListings(t *testing.T) {
	p := NewMemoryProvider()
	p.PutCategory(&Category{ID: "b", Name: "B"})
	p.PutCategory(&Category{ID: "a", Name: "A"})
	p.PutProduct(&Product{ID: "z", CategoryID: "a"})
	p.PutProduct(&Product{ID: "m", CategoryID: "a"})
	p.PutProduct(&Product{ID: "k", CategoryID: "b"})

	categories := p.Categories()
	require.Len(t, categories, 2)
	assert.Equal(t, "a", categories[0].ID)
	assert.Equal(t, "b", categories[1].ID)

	products := p.Products()
	require.Len(t, products, 3)
	assert.Equal(t, []string{"k", "m", "z"}, []string{products[0].ID, products[1].ID, products[2].ID})
}

func TestMemoryProviderRemoveProduct(t *testing.T) {
	p := NewMemoryProvider()
	p.PutProduct(&Product{ID: "iron_ingot"})

	assert.True(t, p.RemoveProduct("iron_ingot"))
	assert.False(t, p.RemoveProduct("iron_ingot"))
	_, ok := p.Resolve("iron_ingot")
	assert.False(t, ok)
}

func TestMemoryProviderPutReplaces(t *testing.T) {
	p := NewMemoryProvider()
	p.PutProduct(&Product{ID: "iron_ingot", Name: "Iron"})
	p.PutProduct(&Product{ID: "iron_ingot", Name: "Iron Ingot"})

	prod, ok := p.Resolve("iron_ingot")
	require.True(t, ok)
	assert.Equal(t, "Iron Ingot", prod.Name)
	assert.Len(t, p.Products(), 1)
}
