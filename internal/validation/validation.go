// Package validation содержит функции валидации входных данных.
package validation

import (
	"unicode"

	"github.com/shopspring/decimal"
)

const pinLength = 4

// IsValidPIN проверяет код подтверждения доставки: ровно четыре цифры.
func IsValidPIN(pin string) bool {
	if len(pin) != pinLength {
		return false
	}

	for _, ch := range pin {
		if !unicode.IsDigit(ch) {
			return false
		}
	}

	return true
}

// ParseAmount разбирает денежную сумму из строки и проверяет, что она неотрицательна.
func ParseAmount(s string) (decimal.Decimal, bool) {
	if s == "" {
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}

	if d.IsNegative() {
		return decimal.Zero, false
	}

	return d, true
}
