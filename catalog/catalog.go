package catalog

import "sort"

// Category groups related products for display purposes.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Product is a tradable good. Products are read-only from the engine's
// point of view: the catalogue provider owns them, orders reference them
// by ID only.
type Product struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CategoryID string `json:"category_id"`
}

// Resolver resolves a product ID into its Product. Orders hold a Resolver
// instead of a *Product so they stay valid while the catalogue is still
// loading; Resolve reports false until the product is known.
type Resolver interface {
	Resolve(productID string) (*Product, bool)
}

// Provider is the full catalogue surface the engine consumes.
type Provider interface {
	Resolver
	Products() []*Product
	Categories() []*Category
}

// MemoryProvider is a Provider backed by plain maps. It is the catalogue
// implementation used by tests, the memory-backed market service, and the
// client-side catalogue mirror.
type MemoryProvider struct {
	products   map[string]*Product
	categories map[string]*Category
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		products:   make(map[string]*Product),
		categories: make(map[string]*Category),
	}
}

func (p *MemoryProvider) PutCategory(c *Category) {
	p.categories[c.ID] = c
}

func (p *MemoryProvider) PutProduct(prod *Product) {
	p.products[prod.ID] = prod
}

// RemoveProduct drops a product from the catalogue. Returns true if the
// product existed. Callers owning per-product caches should evict on true.
func (p *MemoryProvider) RemoveProduct(id string) bool {
	_, ok := p.products[id]
	delete(p.products, id)
	return ok
}

func (p *MemoryProvider) Resolve(productID string) (*Product, bool) {
	prod, ok := p.products[productID]
	return prod, ok
}

// Products returns all products sorted by ID for deterministic iteration.
func (p *MemoryProvider) Products() []*Product {
	out := make([]*Product, 0, len(p.products))
	for _, prod := range p.products {
		out = append(out, prod)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Categories returns all categories sorted by ID.
func (p *MemoryProvider) Categories() []*Category {
	out := make([]*Category, 0, len(p.categories))
	for _, c := range p.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
