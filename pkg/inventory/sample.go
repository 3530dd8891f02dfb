package inventory

// SampleRegistry returns a small survival flavored catalog used by the demo
// server and tests.
func SampleRegistry() *Registry {
	return NewRegistry(
		Kind{ID: "apple", NumericID: 1, DisplayName: "Apple", Category: "food", UseActionText: "Eat", Weight: 0.2, Size: Size{1, 1}, Stackable: true, MaxStackSize: 10},
		Kind{ID: "ammo-9mm", NumericID: 2, DisplayName: "9mm Rounds", Category: "ammo", Weight: 0.01, Size: Size{1, 1}, Stackable: true, MaxStackSize: 60},
		Kind{ID: "medkit", NumericID: 3, DisplayName: "Medkit", Category: "medical", UseActionText: "Heal", Rarity: RarityUncommon, Weight: 1.5, Size: Size{2, 2}},
		Kind{ID: "rifle", NumericID: 4, DisplayName: "Hunting Rifle", Category: "weapon", Rarity: RarityRare, Weight: 4.5, Size: Size{4, 1}},
		Kind{ID: "canteen", NumericID: 5, DisplayName: "Canteen", Category: "food", UseActionText: "Drink", Weight: 1, Size: Size{1, 2}},
		Kind{ID: "scrap", NumericID: 6, DisplayName: "Scrap Metal", Category: "resource", Weight: 0.5, Size: Size{1, 1}, Stackable: true},
	)
}

// SampleInventory returns a 15x6 backpack pre-filled with a few sample items.
func SampleInventory(owner OwnerID) (*Inventory, *Registry) {
	reg := SampleRegistry()
	inv := New("sample-"+string(owner), owner, 15, 6, 50, WithRegistry(reg))
	inv.TryAddItemFromKind("rifle", &Tile{X: 0, Y: 0}, 1)
	inv.TryAddItemFromKind("medkit", &Tile{X: 4, Y: 0}, 1)
	inv.TryAddItemFromKind("apple", nil, 5)
	inv.TryAddItemFromKind("ammo-9mm", nil, 30)
	return inv, reg
}
