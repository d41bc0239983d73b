package exchange

import (
	"fmt"
	"strings"
)

// SupportedExchanges - список поддерживаемых режимов исполнения.
// Пока агент торгует только на бумажной бирже; имена реальных
// площадок зарезервированы под будущие адаптеры.
var SupportedExchanges = []string{
	"paper",
}

// Settings - параметры создания адаптера
type Settings struct {
	PaperBalance  float64 // стартовый баланс бумажной биржи, USDT
	PaperSlippage float64 // доля цены, применяемая к рыночным ордерам
}

// NewExchange создает биржевой адаптер по имени
func NewExchange(name string, settings Settings) (Exchange, error) {
	switch strings.ToLower(name) {
	case "", "paper":
		return NewPaperExchange(settings.PaperBalance, settings.PaperSlippage), nil
	default:
		return nil, fmt.Errorf("unsupported exchange: %s", name)
	}
}

// IsSupported проверяет, поддерживается ли биржа
func IsSupported(name string) bool {
	name = strings.ToLower(name)
	for _, supported := range SupportedExchanges {
		if name == supported {
			return true
		}
	}
	return false
}
