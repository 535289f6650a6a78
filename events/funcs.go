package events

// Funcs is a Visitor assembled from optional callbacks. Nil fields ignore
// their kind.
type Funcs struct {
	Market func(MarketEvent) error
	Signal func(SignalEvent) error
	Order  func(OrderEvent) error
	Fill   func(FillEvent) error
	Risk   func(RiskEvent) error
	Timer  func(TimerEvent) error
}

var _ Visitor = Funcs{}

func (f Funcs) VisitMarket(e MarketEvent) error {
	if f.Market == nil {
		return nil
	}
	return f.Market(e)
}

func (f Funcs) VisitSignal(e SignalEvent) error {
	if f.Signal == nil {
		return nil
	}
	return f.Signal(e)
}

func (f Funcs) VisitOrder(e OrderEvent) error {
	if f.Order == nil {
		return nil
	}
	return f.Order(e)
}

func (f Funcs) VisitFill(e FillEvent) error {
	if f.Fill == nil {
		return nil
	}
	return f.Fill(e)
}

func (f Funcs) VisitRisk(e RiskEvent) error {
	if f.Risk == nil {
		return nil
	}
	return f.Risk(e)
}

func (f Funcs) VisitTimer(e TimerEvent) error {
	if f.Timer == nil {
		return nil
	}
	return f.Timer(e)
}
