package ibgw

import (
	"net"
	"strconv"
	"strings"
	"time"

	"selftrading/src/broker"
)

// fillTimeLayouts cover the gateway's execution timestamp variants.
var fillTimeLayouts = []string{
	"20060102  15:04:05",
	"20060102 15:04:05 MST",
	"20060102-15:04:05",
}

func parseFillTime(raw string) time.Time {
	for _, layout := range fillTimeLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}

// readLoop drains incoming frames and dispatches them into client state
// until the socket closes.
func (c *Client) readLoop(conn net.Conn) {
	for {
		fields, err := readFrame(conn)
		if err != nil {
			c.mu.Lock()
			wasConnected := c.connected
			c.connected = false
			// Unblock anything still waiting on this session.
			for key, done := range c.waiters {
				close(done)
				delete(c.waiters, key)
			}
			c.mu.Unlock()

			if wasConnected {
				c.log.WithError(err).Warn("Session read loop ended")
			}
			return
		}
		c.dispatch(fields)
	}
}

func (c *Client) dispatch(fields []string) {
	r := &fieldReader{fields: fields}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch r.nextInt() {
	case inTickPrice:
		c.handleTickPrice(r)
	case inOrderStatus:
		c.handleOrderStatus(r)
	case inErrMsg:
		c.handleErrMsg(r)
	case inOpenOrder:
		c.handleOpenOrder(r)
	case inNextValidID:
		r.skip(1)
		c.nextOrderID = r.nextInt64()
	case inExecutionData:
		c.handleExecutionData(r)
	case inManagedAccts:
		r.skip(1)
		c.accounts = strings.Split(r.next(), ",")
	case inOpenOrderEnd:
		c.signal("openOrders")
	case inExecutionDataEnd:
		r.skip(1)
		c.signal("execs:" + r.next())
	case inTickSnapshotEnd:
		r.skip(1)
		c.signal("tick:" + r.next())
	case inPositionData:
		c.handlePositionData(r)
	case inPositionEnd:
		c.signal("positions")
	case inAccountSummary:
		c.handleAccountSummary(r)
	case inAccountSummaryEnd:
		r.skip(1)
		c.signal("summary:" + r.next())
	}
}

// tickPrice: version, tickerId, tickType, price, size, attrs.
// Tick type 4 is the last trade; 9 (close) is kept only as a fallback.
func (c *Client) handleTickPrice(r *fieldReader) {
	r.skip(1)
	tickerID := r.nextInt64()
	tickType := r.nextInt()
	price := r.nextFloat()

	switch tickType {
	case 4, 68:
		c.prices[tickerID] = price
		c.signal("tick:" + strconv.FormatInt(tickerID, 10))
	case 9:
		if c.prices[tickerID] == 0 {
			c.prices[tickerID] = price
		}
	}
}

// orderStatus: orderId, status, filled, remaining, avgFillPrice, permId,
// parentId, lastFillPrice, clientId, whyHeld, mktCapPrice.
func (c *Client) handleOrderStatus(r *fieldReader) {
	orderID := r.nextInt64()
	status := r.next()
	filled := r.nextFloat()
	r.skip(1) // remaining
	avgFill := r.nextFloat()
	permID := r.nextInt64()

	o, ok := c.orders[orderID]
	if !ok {
		o = &orderState{orderID: orderID}
		c.orders[orderID] = o
	}
	o.status = status
	o.filled = filled
	o.avgFill = avgFill
	if permID != 0 {
		o.permID = permID
	}
}

// openOrder: orderId, contract block, then the order block. Only the
// leading fields up to the account are read; the long feature tail is
// dropped with the frame.
func (c *Client) handleOpenOrder(r *fieldReader) {
	orderID := r.nextInt64()

	r.skip(1) // conId
	symbol := r.next()
	r.skip(9) // secType .. tradingClass

	action := r.next()
	quantity := r.nextFloat()
	orderType := r.next()
	limitPrice := r.nextFloat()
	stopPrice := r.nextFloat()
	r.skip(2) // tif, ocaGroup
	account := r.next()

	o, ok := c.orders[orderID]
	if !ok {
		o = &orderState{orderID: orderID}
		c.orders[orderID] = o
	}
	o.symbol = symbol
	o.action = action
	o.quantity = quantity
	o.orderType = orderType
	o.limitPrice = limitPrice
	o.stopPrice = stopPrice
	o.account = account
}

// executionData: reqId, orderId, contract block, then the execution block.
func (c *Client) handleExecutionData(r *fieldReader) {
	r.skip(1) // reqId
	orderID := r.nextInt64()

	r.skip(1) // conId
	symbol := r.next()
	r.skip(9) // secType .. tradingClass

	r.skip(1) // execId
	fillTime := parseFillTime(r.next())
	account := r.next()
	r.skip(1) // exchange
	side := r.next()
	shares := r.nextFloat()
	price := r.nextFloat()
	permID := r.nextInt64()

	if permID == 0 {
		return
	}

	fill := broker.FillRow{
		Shares:  shares,
		Price:   price,
		Time:    fillTime,
		Account: account,
	}

	// Re-reported fills replace the matching (permId, time) entry instead
	// of growing the list.
	replaced := false
	for i, existing := range c.fills[permID] {
		if existing.Time.Equal(fillTime) {
			c.fills[permID][i] = fill
			replaced = true
			break
		}
	}
	if !replaced {
		c.fills[permID] = append(c.fills[permID], fill)
	}

	if o, ok := c.orders[orderID]; ok {
		if o.permID == 0 {
			o.permID = permID
		}
		if o.symbol == "" {
			o.symbol = symbol
		}
		if o.action == "" && side == "BOT" {
			o.action = "BUY"
		} else if o.action == "" && side == "SLD" {
			o.action = "SELL"
		}
	}
}

// positionData: version, account, contract block, position, avgCost.
func (c *Client) handlePositionData(r *fieldReader) {
	r.skip(1)
	account := r.next()

	r.skip(1) // conId
	symbol := r.next()
	r.skip(9) // secType .. tradingClass

	quantity := r.nextFloat()
	avgCost := r.nextFloat()

	c.positions = append(c.positions, broker.PositionRow{
		Symbol:   symbol,
		Quantity: quantity,
		AvgCost:  avgCost,
		Account:  account,
	})
}

// accountSummary: version, reqId, account, tag, value, currency.
func (c *Client) handleAccountSummary(r *fieldReader) {
	r.skip(1)
	reqID := r.nextInt64()

	row := broker.SummaryRow{
		Account:  r.next(),
		Tag:      r.next(),
		Value:    r.next(),
		Currency: r.next(),
	}
	c.summaries[reqID] = append(c.summaries[reqID], row)
}

// errMsg: version, id, code, message. Codes at 2100+ are informational
// gateway notices, not failures.
func (c *Client) handleErrMsg(r *fieldReader) {
	r.skip(1)
	id := r.nextInt64()
	code := r.nextInt()
	message := r.next()

	entry := c.log.WithFields(map[string]interface{}{
		"req_id": id,
		"code":   code,
	})
	if code >= 2100 {
		entry.Debug(message)
		return
	}
	entry.Warn(message)
}
