package synctest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"commerce-sync/internal/models"
	"commerce-sync/internal/shopify"
)

const shopEntity = "shop"

// Fetcher serves canned storefront records per entity type
type Fetcher struct {
	mu    sync.Mutex
	shop  *shopify.Shop
	data  map[string][]json.RawMessage
	errs  map[string]error
	calls map[string]int
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		data:  make(map[string][]json.RawMessage),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

// Set replaces the records served for entity
func (f *Fetcher) Set(entity string, records ...string) {
	raws := make([]json.RawMessage, 0, len(records))
	for _, r := range records {
		raws = append(raws, json.RawMessage(r))
	}
	f.mu.Lock()
	f.data[entity] = raws
	f.mu.Unlock()
}

// SetShop sets the store profile served by FetchShop
func (f *Fetcher) SetShop(shop *shopify.Shop) {
	f.mu.Lock()
	f.shop = shop
	f.mu.Unlock()
}

// Fail makes every fetch of entity return err
func (f *Fetcher) Fail(entity string, err error) {
	f.mu.Lock()
	f.errs[entity] = err
	f.mu.Unlock()
}

// FailAll makes every fetch, FetchShop included, return err
func (f *Fetcher) FailAll(err error) {
	for _, entity := range []string{models.EntityCustomers, models.EntityOrders, models.EntityProducts, shopEntity} {
		f.Fail(entity, err)
	}
}

// CallCount returns how many times entity was fetched
func (f *Fetcher) CallCount(entity string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[entity]
}

func (f *Fetcher) fetch(entity string) ([]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[entity]++
	if err := f.errs[entity]; err != nil {
		return nil, err
	}
	return f.data[entity], nil
}

func (f *Fetcher) FetchCustomers(ctx context.Context) ([]json.RawMessage, error) {
	return f.fetch(models.EntityCustomers)
}

func (f *Fetcher) FetchOrders(ctx context.Context) ([]json.RawMessage, error) {
	return f.fetch(models.EntityOrders)
}

func (f *Fetcher) FetchProducts(ctx context.Context) ([]json.RawMessage, error) {
	return f.fetch(models.EntityProducts)
}

func (f *Fetcher) FetchShop(ctx context.Context) (*shopify.Shop, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[shopEntity]++
	if err := f.errs[shopEntity]; err != nil {
		return nil, err
	}
	if f.shop == nil {
		return nil, errors.New("failed to fetch /shop.json: response has no shop")
	}
	return f.shop, nil
}
