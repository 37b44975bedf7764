package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidCustomerName(t *testing.T) {
	cases := map[string]bool{
		"Acme":                  true,
		"Acme Rentals_01":       true,
		"abc":                   false,
		"1Acme":                 false,
		" Acme":                 false,
		"Acme & Co":             false,
		"twenty-one-characters": false,
	}
	for name, want := range cases {
		assert.Equal(t, want, ValidCustomerName(name), name)
	}
}

func TestValidateCustomerRequestReportsJSONFieldNames(t *testing.T) {
	err := Validate(CustomerRequest{
		CustomerName: "9lives",
		Email:        "someone@example.io",
		Mobile:       "12345",
		Address:      "abc",
		GSTNumber:    "short",
	})
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "customer_name")
	assert.Contains(t, verr.Fields, "email")
	assert.Equal(t, "Mobile number must be exactly 10 digits.", verr.Fields["mobile"])
	assert.Contains(t, verr.Fields, "address")
	assert.Contains(t, verr.Fields, "gst_number")
	assert.NotContains(t, verr.Fields, "pan_number")
}

func TestValidateAcceptsWellFormedCustomer(t *testing.T) {
	err := Validate(CustomerRequest{
		CustomerName: "Acme Rentals",
		Email:        "ops@acme.in",
		Mobile:       "9876543210",
		Address:      "12 Market Road",
		PANNumber:    "ABCDE1234F",
	})
	assert.NoError(t, err)
}

func TestValidateUserPasswordConfirmation(t *testing.T) {
	err := Validate(UserRequest{
		FirstName:       "Asha",
		LastName:        "Rao",
		Email:           "asha@example.com",
		Mobile:          "9876543210",
		Password:        "secret",
		ConfirmPassword: "secrets",
	})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "Passwords do not match.", verr.Fields["confirm_password"])
}

func TestValidateNestedInwardItems(t *testing.T) {
	err := Validate(InwardRequest{
		InwardDate: "2024-02-30",
		Items:      []InwardItemRequest{{ItemName: "Shuttering plate"}},
	})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "inward_date")
	assert.Contains(t, verr.Fields, "items[0].item_id")
}

func TestValidationErrorErrIsNilWhenEmpty(t *testing.T) {
	verr := NewValidationError()
	assert.NoError(t, verr.Err())

	verr.Add("paid_amount", "Amount must be greater than 0.")
	verr.Add("paid_amount", "ignored")
	require.Error(t, verr.Err())
	assert.Equal(t, "Amount must be greater than 0.", verr.Fields["paid_amount"])
}
