package risk

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"tradeagent/internal/models"
	"tradeagent/pkg/utils"
)

// ============================================================
// Защитная орбита позиции
// ============================================================
//
// Орбита держит вокруг позиции пару границ take-profit/stop-loss,
// ширина которых задаётся уровнем защиты. Уровень переключается по
// возрасту позиции и текущей прибыли: свежая или убыточная позиция
// защищается оборонительно, прибыльная получает больше пространства
// вверх и меньше вниз.

// OrbitLevel - уровень защиты позиции
type OrbitLevel string

const (
	OrbitDefensive  OrbitLevel = "defensive"
	OrbitBalanced   OrbitLevel = "balanced"
	OrbitAggressive OrbitLevel = "aggressive"
)

// Параметры переключения уровней
const (
	orbitActivationTime  = 30 * time.Second
	balancedProfitPct    = 0.002
	aggressiveProfitPct  = 0.005
	orbitChangeThreshold = 0.1 // доля ATR, при сдвиге больше которой орбита считается перестроенной
)

type orbitParams struct {
	tpMult float64
	slMult float64
}

var orbitLevels = map[OrbitLevel]orbitParams{
	OrbitDefensive:  {tpMult: 0.8, slMult: 1.8},
	OrbitBalanced:   {tpMult: 1.2, slMult: 1.2},
	OrbitAggressive: {tpMult: 1.8, slMult: 0.8},
}

// Виды пробоя орбиты
const (
	BreachTakeProfit = "take_profit"
	BreachStopLoss   = "stop_loss"
)

// OrbitState - текущее положение границ орбиты
type OrbitState struct {
	Level OrbitLevel `json:"level"`
	Upper float64    `json:"upper"`
	Lower float64    `json:"lower"`
}

// Orbit - защитная орбита одной позиции
type Orbit struct {
	side  string
	entry float64
	atr   float64
	log   *zap.Logger

	mu       sync.Mutex
	state    OrbitState
	onChange func(prev, next OrbitState)
}

// NewOrbit создаёт орбиту вокруг точки входа в оборонительном уровне
func NewOrbit(side string, entry, atr float64, log *zap.Logger) *Orbit {
	if log == nil {
		log = zap.NewNop()
	}
	o := &Orbit{
		side:  side,
		entry: entry,
		atr:   atr,
		log:   log,
	}
	o.state = o.bounds(OrbitDefensive)
	return o
}

// OnChange регистрирует обработчик перестроения орбиты
func (o *Orbit) OnChange(fn func(prev, next OrbitState)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onChange = fn
}

// Update пересчитывает уровень и границы орбиты.
// Сдвиг границы больше чем на 0.1 ATR считается перестроением
// и порождает событие.
func (o *Orbit) Update(elapsed time.Duration, profitPct float64) OrbitState {
	level := o.determineLevel(elapsed, profitPct)
	next := o.bounds(level)

	o.mu.Lock()
	prev := o.state
	moved := utils.Abs(next.Upper-prev.Upper) > orbitChangeThreshold*o.atr ||
		utils.Abs(next.Lower-prev.Lower) > orbitChangeThreshold*o.atr
	o.state = next
	handler := o.onChange
	o.mu.Unlock()

	if moved {
		o.log.Info("Protection orbit rebuilt",
			zap.String("from", string(prev.Level)),
			zap.String("to", string(next.Level)),
			zap.Float64("upper", next.Upper),
			zap.Float64("lower", next.Lower))
		if handler != nil {
			handler(prev, next)
		}
	}
	return next
}

// State возвращает текущее положение орбиты
func (o *Orbit) State() OrbitState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Breach проверяет пробой границ орбиты текущей ценой.
// Пустая строка означает, что цена внутри орбиты.
func (o *Orbit) Breach(price float64) string {
	o.mu.Lock()
	state := o.state
	o.mu.Unlock()

	if o.side == models.SideShort {
		switch {
		case price <= state.Lower:
			return BreachTakeProfit
		case price >= state.Upper:
			return BreachStopLoss
		}
		return ""
	}

	switch {
	case price >= state.Upper:
		return BreachTakeProfit
	case price <= state.Lower:
		return BreachStopLoss
	}
	return ""
}

// determineLevel выбирает уровень защиты по возрасту позиции и прибыли
func (o *Orbit) determineLevel(elapsed time.Duration, profitPct float64) OrbitLevel {
	if elapsed < orbitActivationTime || profitPct < 0 {
		return OrbitDefensive
	}
	switch {
	case profitPct >= aggressiveProfitPct:
		return OrbitAggressive
	case profitPct >= balancedProfitPct:
		return OrbitBalanced
	default:
		return OrbitDefensive
	}
}

// bounds строит границы орбиты для уровня.
// Для long верхняя граница - take-profit, нижняя - stop-loss;
// для short зеркально.
func (o *Orbit) bounds(level OrbitLevel) OrbitState {
	p := orbitLevels[level]

	state := OrbitState{Level: level}
	if o.side == models.SideShort {
		state.Upper = o.entry + o.atr*p.slMult
		state.Lower = o.entry - o.atr*p.tpMult
	} else {
		state.Upper = o.entry + o.atr*p.tpMult
		state.Lower = o.entry - o.atr*p.slMult
	}
	return state
}

// DynamicTakeProfit вычисляет цену тейк-профита, расширяя её по мере
// роста прибыли. Волатильный режим добавляет запас, спокойный поджимает.
func DynamicTakeProfit(side string, entry, current, atr, baseProfitPct float64, regime string) float64 {
	var reference, mult float64
	switch {
	case baseProfitPct < 0.001:
		reference, mult = entry, 1.0
	case baseProfitPct < 0.005:
		reference, mult = current, 1.5
	default:
		reference, mult = current, 1.8
	}

	switch regime {
	case models.RegimeVolatile:
		mult += 0.2
	case models.RegimeRanging:
		mult -= 0.1
	}

	if side == models.SideShort {
		return reference - atr*mult
	}
	return reference + atr*mult
}
