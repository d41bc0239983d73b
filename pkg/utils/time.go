package utils

import (
	"time"
)

// time.go - временные окна для журнала решений
//
// Функции:
// - LastNHours / LastNDays: окна агрегации сводок
// - DayStartFrom: граница суток для очистки старых записей
// - FormatDuration: человекочитаемый аптайм в статусе агента

// TimeRange - временной диапазон [Start, End]
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains проверяет, попадает ли время в диапазон
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && !t.After(tr.End)
}

// Duration возвращает продолжительность диапазона
func (tr TimeRange) Duration() time.Duration {
	return tr.End.Sub(tr.Start)
}

// LastNHours возвращает диапазон последних n часов
func LastNHours(n int) TimeRange {
	if n <= 0 {
		n = 1
	}
	now := time.Now().UTC()
	return TimeRange{
		Start: now.Add(-time.Duration(n) * time.Hour),
		End:   now,
	}
}

// LastNDays возвращает диапазон последних n дней, включая сегодня.
// Начало выравнивается на границу суток UTC.
func LastNDays(n int) TimeRange {
	if n <= 0 {
		n = 1
	}
	now := time.Now().UTC()
	return TimeRange{
		Start: DayStartFrom(now.AddDate(0, 0, -(n - 1))),
		End:   now,
	}
}

// DayStartFrom возвращает начало суток (00:00:00 UTC) для указанной даты
func DayStartFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatDuration форматирует продолжительность с точностью до секунды
//
// Примеры: "45s", "5m30s", "2h15m0s", "72h0m0s"
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	return d.Truncate(time.Second).String()
}
