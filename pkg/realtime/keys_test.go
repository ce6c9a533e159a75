package realtime

import "testing"

func TestChannelKey(t *testing.T) {
	tests := []struct {
		name     string
		table    string
		filter   *Filter
		expected string
	}{
		{
			name:     "no filter",
			table:    "pending_products",
			filter:   nil,
			expected: "pending_products",
		},
		{
			name:     "empty filter column treated as no filter",
			table:    "products",
			filter:   &Filter{},
			expected: "products",
		},
		{
			name:     "agent type filter",
			table:    "pending_products",
			filter:   &Filter{Column: "agent_type", Value: "weight_dimension"},
			expected: "pending_products:agent_type=weight_dimension",
		},
		{
			name:     "vendor filter",
			table:    "products",
			filter:   &Filter{Column: "vendor", Value: "boots"},
			expected: "products:vendor=boots",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ChannelKey(tt.table, tt.filter); got != tt.expected {
				t.Errorf("ChannelKey(%q, %+v) = %q, want %q", tt.table, tt.filter, got, tt.expected)
			}
		})
	}
}

func TestChannelKeyDeterministic(t *testing.T) {
	a := ChannelKey("pending_products", &Filter{Column: "agent_type", Value: "caption"})
	b := ChannelKey("pending_products", &Filter{Column: "agent_type", Value: "caption"})
	if a != b {
		t.Errorf("same table and filter must resolve to the same key: %q vs %q", a, b)
	}
}

func TestRowPrimaryKey(t *testing.T) {
	tests := []struct {
		name     string
		row      Row
		expected string
		ok       bool
	}{
		{"nil row", nil, "", false},
		{"missing id", Row{"name": "x"}, "", false},
		{"nil id", Row{"id": nil}, "", false},
		{"empty string id", Row{"id": ""}, "", false},
		{"string id", Row{"id": "a"}, "a", true},
		{"json number id", Row{"id": float64(42)}, "42", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.row.PrimaryKey()
			if got != tt.expected || ok != tt.ok {
				t.Errorf("PrimaryKey() = (%q, %v), want (%q, %v)", got, ok, tt.expected, tt.ok)
			}
		})
	}
}
