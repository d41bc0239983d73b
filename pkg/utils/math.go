package utils

import (
	"math"
)

// math.go - математические утилиты для торгового агента
//
// Назначение:
// Вспомогательные функции для расчёта размеров позиций, PNL и
// исполнения ордеров. Все функции чистые, без побочных эффектов.

// RoundSize округляет размер позиции до заданного числа знаков.
//
// Используется после риск-расчёта, чтобы не отправлять на биржу
// размеры с бесконечной дробной частью.
//
// Примеры:
//   - RoundSize(0.123456, 4) = 0.1235
//   - RoundSize(1.999999, 2) = 2.0
func RoundSize(value float64, decimals int) float64 {
	if decimals < 0 {
		return value
	}
	factor := math.Pow(10, float64(decimals))
	return math.Round(value*factor) / factor
}

// RoundToLotSize округляет значение ВНИЗ до ближайшего кратного lotSize.
//
// Округление вниз гарантирует, что ордер не превысит доступные средства.
// Если lotSize <= 0, возвращает исходное значение.
func RoundToLotSize(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	return math.Floor(value/lotSize) * lotSize
}

// CalculatePNL расчитывает прибыль/убыток по позиции.
//
// Формулы:
//   - Long PNL = (P_close - P_open) × qty
//   - Short PNL = (P_open - P_close) × qty
func CalculatePNL(side string, entryPrice, currentPrice, quantity float64) float64 {
	if quantity <= 0 {
		return 0
	}

	switch side {
	case "long":
		return (currentPrice - entryPrice) * quantity
	case "short":
		return (entryPrice - currentPrice) * quantity
	default:
		return 0
	}
}

// ProfitPct возвращает прибыль позиции в долях от цены входа.
//
// Для long положительна при росте цены, для short - при падении.
// Если entryPrice <= 0, возвращает 0.
func ProfitPct(side string, entryPrice, currentPrice float64) float64 {
	if entryPrice <= 0 {
		return 0
	}
	pct := (currentPrice - entryPrice) / entryPrice
	if side == "short" {
		return -pct
	}
	return pct
}

// CalculateSlippage возвращает проскальзывание исполнения в долях
// относительно ожидаемой цены. Если expected <= 0, возвращает 0.
func CalculateSlippage(expectedPrice, actualPrice float64) float64 {
	if expectedPrice <= 0 {
		return 0
	}
	return math.Abs(actualPrice-expectedPrice) / expectedPrice
}

// SplitVolume разбивает общий объём на N равных частей.
//
// Используется TWAP-исполнением для дробления крупных ордеров.
// Каждая часть округляется до lotSize; сумма частей может быть
// меньше totalVolume из-за округления.
func SplitVolume(totalVolume float64, nParts int, lotSize float64) []float64 {
	if nParts <= 0 || totalVolume <= 0 {
		return nil
	}

	if nParts == 1 {
		return []float64{RoundToLotSize(totalVolume, lotSize)}
	}

	partSize := totalVolume / float64(nParts)
	roundedPart := RoundToLotSize(partSize, lotSize)

	if roundedPart <= 0 {
		// Часть слишком маленькая - исполняем одним ордером
		return []float64{RoundToLotSize(totalVolume, lotSize)}
	}

	parts := make([]float64, nParts)
	for i := range parts {
		parts[i] = roundedPart
	}

	return parts
}

// Abs возвращает абсолютное значение числа.
func Abs(x float64) float64 {
	return math.Abs(x)
}

// Min возвращает минимум из двух чисел.
func Min(a, b float64) float64 {
	return math.Min(a, b)
}

// Max возвращает максимум из двух чисел.
func Max(a, b float64) float64 {
	return math.Max(a, b)
}

// Clamp ограничивает значение диапазоном [min, max].
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
