package importer

import (
	"context"

	"github.com/block/dumpimport/pkg/record"
	"github.com/block/dumpimport/pkg/store"
)

// Foreign keys in mapped records hold dump ids. The resolve functions
// translate them to ids of the target, or nil when the referenced row
// cannot be found. An unresolved reference never fails a record; only a
// failing store does.

// resolveProduct looks a product up among those persisted by this run,
// then in the target: by id in exact-id mode, otherwise by the name the
// dump gives it, or by its derived SKU when the dump has no such product.
func (i *Importer) resolveProduct(ctx context.Context, dumpID *int64) (*int64, error) {
	if dumpID == nil {
		return nil, nil
	}
	if id, ok := i.products[*dumpID]; ok {
		return &id, nil
	}
	var (
		ref *store.Ref
		err error
	)
	name, named := i.productNames[*dumpID]
	switch {
	case i.exact():
		ref, err = i.store.FindUnique(ctx, record.TableProduct, "id", *dumpID)
	case named:
		ref, err = i.store.FindFirst(ctx, record.TableProduct, store.Criteria{"name": name})
	default:
		ref, err = i.store.FindUnique(ctx, record.TableProduct, "sku", record.SKU(*dumpID))
	}
	if err != nil || ref == nil {
		i.unresolved(ctx, record.TableProduct, *dumpID, err)
		return nil, err
	}
	i.products[*dumpID] = ref.ID
	return &ref.ID, nil
}

// resolveOrder finds the order derived from a dump order id by its order
// number. Orders persisted by this run are found without a lookup.
func (i *Importer) resolveOrder(ctx context.Context, dumpID *int64) (*int64, error) {
	if dumpID == nil {
		return nil, nil
	}
	if id, ok := i.orders[*dumpID]; ok {
		return &id, nil
	}
	ref, err := i.store.FindUnique(ctx, record.TableOrder, "orderNumber", record.OrderNumber(*dumpID))
	if err != nil || ref == nil {
		i.unresolved(ctx, record.TableOrder, *dumpID, err)
		return nil, err
	}
	i.orders[*dumpID] = ref.ID
	return &ref.ID, nil
}

// resolveExisting keeps a reference to a row the import does not create,
// a user or a trainer, when the target has a row with that id.
func (i *Importer) resolveExisting(ctx context.Context, table record.Table, id *int64) (*int64, error) {
	if id == nil {
		return nil, nil
	}
	cache, ok := i.existing[table]
	if !ok {
		cache = make(map[int64]*int64)
		i.existing[table] = cache
	}
	if ref, ok := cache[*id]; ok {
		return ref, nil
	}
	found, err := i.store.FindUnique(ctx, table, "id", *id)
	if err != nil {
		return nil, err
	}
	var ref *int64
	if found != nil {
		ref = &found.ID
	} else {
		i.unresolved(ctx, table, *id, nil)
	}
	cache[*id] = ref
	return ref, nil
}

func (i *Importer) unresolved(ctx context.Context, table record.Table, id int64, err error) {
	if err != nil {
		return
	}
	i.logger.DebugContext(ctx, "reference not found, set to null", "table", table.String(), "id", id)
}
