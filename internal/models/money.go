package models

import "math"

// RoundMoney rounds an amount to cents, half away from zero
func RoundMoney(amount float64) float64 {
	return math.Round(amount*100) / 100
}
