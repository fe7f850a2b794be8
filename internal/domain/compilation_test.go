package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trip-planner/internal/domain"
	"trip-planner/internal/testutil"
)

func TestCompilation_ActiveItems(t *testing.T) {
	eiffel := testutil.NewTestAttraction(testutil.WithAttractionID("188151"))
	louvre := testutil.NewTestAttraction(testutil.WithAttractionID("188757"))

	removed := testutil.NewTestItem(louvre, 15)
	removed.IsActive = false
	c := testutil.NewTestCompilation(1, testutil.NewTestItem(eiffel, 40), removed)

	active := c.ActiveItems()
	require.Len(t, active, 1)
	assert.Equal(t, "188151", active[0].AttractionID)

	var nilCompilation *domain.Compilation
	assert.Nil(t, nilCompilation.ActiveItems())
}

func TestItem_Refers(t *testing.T) {
	a := testutil.NewTestAttraction(testutil.WithAttractionID("42"))
	item := testutil.NewTestItem(a, 10)

	assert.True(t, item.Refers("42"))
	// the provider id of the nested attraction matches too
	assert.True(t, item.Refers(a.TripadvisorID))
	assert.False(t, item.Refers(""))
	assert.False(t, item.Refers("43"))
}

func TestCompilation_UnmarshalStringAmounts(t *testing.T) {
	var c domain.Compilation
	err := json.Unmarshal([]byte(`{
		"id": 3,
		"name": "Ma compilation",
		"estimated_budget": "120.50",
		"items": [{"id": 9, "attraction_id": 188151, "effective_cost": "40.00", "estimated_cost": null, "is_active": true}]
	}`), &c)
	require.NoError(t, err)

	require.NotNil(t, c.EstimatedBudget)
	assert.Equal(t, 120.5, *c.EstimatedBudget)
	require.Len(t, c.Items, 1)
	assert.Equal(t, "188151", c.Items[0].AttractionID)
	assert.Equal(t, 40.0, c.Items[0].EffectiveCost)
	assert.Nil(t, c.Items[0].EstimatedCost)
}

func TestClassifyBudget(t *testing.T) {
	tests := []struct {
		estimate float64
		want     domain.BudgetStatus
	}{
		{0, domain.UnderBudget},
		{70, domain.UnderBudget},
		{70.01, domain.OnBudget},
		{100, domain.OnBudget},
		{100.01, domain.OverBudget},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, domain.ClassifyBudget(tt.estimate, 100), "estimate %v", tt.estimate)
	}
	assert.Equal(t, "Dépasse le budget", domain.OverBudget.Label())
}

func TestItemInput_Validate(t *testing.T) {
	tests := []struct {
		name   string
		in     domain.ItemInput
		fields []string
	}{
		{"valid", domain.ItemInput{AttractionID: "1", Priority: 3, EstimatedCost: testutil.Float(0)}, nil},
		{"missing attraction", domain.ItemInput{Priority: 1}, []string{"attraction_id"}},
		{"priority bounds", domain.ItemInput{AttractionID: "1", Priority: 6}, []string{"priority"}},
		{"negative cost", domain.ItemInput{AttractionID: "1", Priority: 1, EstimatedCost: testutil.Float(-5)}, []string{"estimated_cost"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
			for _, f := range tt.fields {
				assert.Contains(t, verr.Fields, f)
			}
		})
	}
}
