package domain

import "errors"

// Validator is a pure per-record check. A nil return accepts the record; a
// non-nil return rejects it with the reason used in the batch result.
type Validator func(Record) error

// RecordType binds a logical data type from the agent to its target table and
// required-field validator.
type RecordType struct {
	Name     string
	Table    string
	Validate Validator
	// ReferenceEntity names the reference-data entity whose key set guards
	// ReferenceField, or "" when the type has no referential constraint.
	ReferenceEntity string
	ReferenceField  string
}

var recordTypes = map[string]RecordType{
	"warehouses_full": {
		Name:     "warehouses_full",
		Table:    "warehouses",
		Validate: validateWarehouse,
	},
	"vendors_full": {
		Name:     "vendors_full",
		Table:    "vendors",
		Validate: validateVendor,
	},
	"items_full": {
		Name:     "items_full",
		Table:    "items",
		Validate: validateItem,
	},
	"inventory_current_full": {
		Name:            "inventory_current_full",
		Table:           "inventory_current",
		Validate:        validateInventory,
		ReferenceEntity: "warehouses",
		ReferenceField:  "warehouse_code",
	},
	"sales_orders_incremental": {
		Name:     "sales_orders_incremental",
		Table:    "sales_orders",
		Validate: validateSalesOrder,
	},
	"purchase_orders_incremental": {
		Name:     "purchase_orders_incremental",
		Table:    "purchase_orders",
		Validate: validatePurchaseOrder,
	},
	"costs_incremental": {
		Name:     "costs_incremental",
		Table:    "costs",
		Validate: validateCost,
	},
	"pricing_full": {
		Name:     "pricing_full",
		Table:    "pricing",
		Validate: validatePricing,
	},
}

// TypeFor resolves a logical data type by name.
func TypeFor(name string) (RecordType, bool) {
	t, ok := recordTypes[name]
	return t, ok
}

// TypeNames lists the registered logical data types.
func TypeNames() []string {
	names := make([]string, 0, len(recordTypes))
	for name := range recordTypes {
		names = append(names, name)
	}
	return names
}

var (
	errMissingWarehouseCode = errors.New("missing warehouse_code")
	errMissingVendorCode    = errors.New("missing vendor_code")
	errMissingItemCode      = errors.New("missing item_code")
	errMissingOrderID       = errors.New("missing order_id")
	errInvalidOrderID       = errors.New("invalid order_id: must be integer")
	errInvalidOnHandQty     = errors.New("invalid on_hand_qty: must be numeric")
	errMissingCostDate      = errors.New("missing cost_date")
	errMissingPriceList     = errors.New("missing price_list")
)

func validateWarehouse(r Record) error {
	if r.String("warehouse_code") == "" {
		return errMissingWarehouseCode
	}
	return nil
}

func validateVendor(r Record) error {
	if r.String("vendor_code") == "" {
		return errMissingVendorCode
	}
	return nil
}

func validateItem(r Record) error {
	if r.String("item_code") == "" {
		return errMissingItemCode
	}
	return nil
}

func validateInventory(r Record) error {
	if r.String("item_code") == "" {
		return errMissingItemCode
	}
	if r.String("warehouse_code") == "" {
		return errMissingWarehouseCode
	}
	if !r.numeric("on_hand_qty") {
		return errInvalidOnHandQty
	}
	return nil
}

func validateSalesOrder(r Record) error {
	if _, ok := r["order_id"]; !ok {
		return errMissingOrderID
	}
	if !r.integer("order_id") {
		return errInvalidOrderID
	}
	return nil
}

func validatePurchaseOrder(r Record) error {
	if _, ok := r["order_id"]; !ok {
		return errMissingOrderID
	}
	if !r.integer("order_id") {
		return errInvalidOrderID
	}
	return nil
}

func validateCost(r Record) error {
	if r.String("item_code") == "" {
		return errMissingItemCode
	}
	if r.String("cost_date") == "" {
		return errMissingCostDate
	}
	return nil
}

func validatePricing(r Record) error {
	if r.String("item_code") == "" {
		return errMissingItemCode
	}
	if r.String("price_list") == "" {
		return errMissingPriceList
	}
	return nil
}
