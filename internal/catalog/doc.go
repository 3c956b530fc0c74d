// Package catalog holds the product data model shared by the fetcher, the
// snapshot store, the diff engine and the notification layer.
//
// # Identity
//
// Every product is indexed by a stable key derived from its detail page URL
// (see KeyResolver). The key ignores query strings, fragments, title wording,
// SKU formatting and color labels, so two fetches of the same page in any two
// runs resolve to the same key.
//
// # Stock policies
//
// Two stock granularities are supported by one engine:
//   - quantity: per-size integer counts (Record.Sizes)
//   - boolean: the list of currently purchasable sizes (Record.AvailableSizes)
//
// Record.InStock is derived from whichever representation the policy uses.
package catalog
