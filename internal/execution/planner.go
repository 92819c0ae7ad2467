package execution

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"trader-core/internal/decision"
	"trader-core/internal/market"
)

// BuildManageOrders 把仓位决策翻译为委托列表。
// HOLD 不产生委托；减仓类委托一律带 reduceOnly，避免方向翻转。
func BuildManageOrders(plan ManagePlan, opts Options) ([]OrderRequest, error) {
	if plan.MarketPrice <= 0 {
		return nil, errors.New("execution: 市场价格无效")
	}
	if plan.Position.Size <= 0 {
		return nil, errors.New("execution: 仓位数量无效")
	}

	entrySide, err := directionSide(plan.Position.Direction)
	if err != nil {
		return nil, err
	}

	switch plan.Decision.Action.Type {
	case decision.ActionHold:
		return nil, nil

	case decision.ActionClose:
		params := baseParams(opts)
		params["reduceOnly"] = true
		params["closePosition"] = true
		return []OrderRequest{{
			Symbol:     plan.Position.Symbol,
			Type:       "market",
			Side:       oppositeSide(entrySide),
			Amount:     plan.Position.Size,
			Price:      plan.MarketPrice,
			ReduceOnly: true,
			CloseAll:   true,
			Params:     params,
		}}, nil

	case decision.ActionScaleOut:
		fraction := plan.Decision.Action.Fraction
		if fraction <= 0 || fraction >= 1 {
			return nil, fmt.Errorf("execution: 减仓比例无效 %.2f", fraction)
		}
		amount := plan.Position.Size * fraction
		if amount <= 0 {
			return nil, errors.New("execution: 减仓数量无效")
		}
		params := baseParams(opts)
		params["reduceOnly"] = true
		return []OrderRequest{{
			Symbol:     plan.Position.Symbol,
			Type:       "market",
			Side:       oppositeSide(entrySide),
			Amount:     amount,
			Price:      plan.MarketPrice,
			ReduceOnly: true,
			Params:     params,
		}}, nil

	case decision.ActionScaleIn, decision.ActionDCA:
		amount := math.Abs(plan.Decision.SizeDelta)
		if amount <= 0 {
			return nil, errors.New("execution: 加仓数量无效")
		}
		params := baseParams(opts)
		if plan.Position.StopPrice > 0 {
			params["stopLossPrice"] = plan.Position.StopPrice
		}
		if plan.Position.TargetPrice > 0 {
			params["takeProfitPrice"] = plan.Position.TargetPrice
		}
		return []OrderRequest{{
			Symbol: plan.Position.Symbol,
			Type:   "market",
			Side:   entrySide,
			Amount: amount,
			Price:  plan.MarketPrice,
			Params: params,
		}}, nil

	default:
		return nil, fmt.Errorf("execution: 未知决策动作 %s", plan.Decision.Action.Type)
	}
}

// BuildEntryOrder 为新开仓生成委托，附带止损止盈参数。
func BuildEntryOrder(plan EntryPlan, opts Options) (OrderRequest, error) {
	if plan.MarketPrice <= 0 {
		return OrderRequest{}, errors.New("execution: 市场价格无效")
	}
	if plan.Lots <= 0 {
		return OrderRequest{}, errors.New("execution: 开仓手数无效")
	}

	side, err := directionSide(plan.Direction)
	if err != nil {
		return OrderRequest{}, err
	}

	params := baseParams(opts)
	if plan.StopPrice > 0 {
		params["stopLossPrice"] = plan.StopPrice
	}
	if plan.TargetPrice > 0 {
		params["takeProfitPrice"] = plan.TargetPrice
	}

	return OrderRequest{
		Symbol: plan.Symbol,
		Type:   "market",
		Side:   side,
		Amount: plan.Lots,
		Price:  plan.MarketPrice,
		Params: params,
	}, nil
}

func baseParams(opts Options) map[string]interface{} {
	params := make(map[string]interface{})
	if opts.Slippage > 0 {
		params["slippage"] = formatSlippage(opts.Slippage)
	}
	if opts.PostOnly {
		params["postOnly"] = true
	}
	if opts.TimeInForce != "" {
		params["timeInForce"] = strings.ToLower(opts.TimeInForce)
	}
	return params
}

func directionSide(dir market.Direction) (OrderSide, error) {
	switch dir {
	case market.DirectionLong:
		return OrderSideBuy, nil
	case market.DirectionShort:
		return OrderSideSell, nil
	default:
		return "", fmt.Errorf("execution: 无法为方向 %s 确定委托方向", dir)
	}
}

func oppositeSide(side OrderSide) OrderSide {
	if side == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

func formatSlippage(value float64) string {
	return fmt.Sprintf("%.6f", value)
}
