package processor

import (
	"context"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// Client — клиент Stripe API поверх официального SDK.
type Client struct {
	sc *client.API
}

// NewClient создаёт новый клиент Stripe с заданным секретным ключом.
func NewClient(apiKey string) *Client {
	sc := &client.API{}
	sc.Init(apiKey, nil)
	return &Client{sc: sc}
}

// CreateCustomer создаёт клиента на стороне провайдера и возвращает его id.
// Вызывается один раз при регистрации: идентификатор никогда не пересоздаётся.
func (c *Client) CreateCustomer(ctx context.Context, email, name string) (string, error) {
	const op = "processor.CreateCustomer"
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.Context = ctx

	cust, err := c.sc.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return cust.ID, nil
}

// RetrievePrice возвращает тариф по его id.
func (c *Client) RetrievePrice(ctx context.Context, priceID string) (*Price, error) {
	const op = "processor.RetrievePrice"
	params := &stripe.PriceParams{}
	params.Context = ctx

	p, err := c.sc.Prices.Get(priceID, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	price := &Price{
		ID:         p.ID,
		UnitAmount: p.UnitAmount,
		Currency:   string(p.Currency),
	}
	if p.Product != nil {
		price.ProductID = p.Product.ID
	}
	if p.Recurring != nil {
		price.Recurring = &Recurring{
			Interval:      string(p.Recurring.Interval),
			IntervalCount: int(p.Recurring.IntervalCount),
		}
	}
	return price, nil
}

// RetrieveProduct возвращает продукт по его id.
func (c *Client) RetrieveProduct(ctx context.Context, productID string) (*Product, error) {
	const op = "processor.RetrieveProduct"
	params := &stripe.ProductParams{}
	params.Context = ctx

	p, err := c.sc.Products.Get(productID, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Product{ID: p.ID, Name: p.Name}, nil
}

// CreateSchedule создаёт график платежей, начинающийся немедленно.
func (c *Client) CreateSchedule(ctx context.Context, req CreateScheduleParams) (*Schedule, error) {
	const op = "processor.CreateSchedule"

	phase := &stripe.SubscriptionSchedulePhaseParams{
		Items: []*stripe.SubscriptionSchedulePhaseItemParams{
			{Price: stripe.String(req.PriceID), Quantity: stripe.Int64(1)},
		},
	}
	if req.TrialEnd != nil {
		phase.TrialEnd = stripe.Int64(req.TrialEnd.Unix())
	}
	if req.Iterations > 0 {
		phase.Iterations = stripe.Int64(int64(req.Iterations))
	}

	params := &stripe.SubscriptionScheduleParams{
		Customer:     stripe.String(req.CustomerID),
		StartDateNow: stripe.Bool(true),
		EndBehavior:  stripe.String("release"),
		Phases:       []*stripe.SubscriptionSchedulePhaseParams{phase},
	}
	params.Context = ctx

	sched, err := c.sc.SubscriptionSchedules.New(params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return convertSchedule(sched), nil
}

// RetrieveSchedule возвращает график по его id.
func (c *Client) RetrieveSchedule(ctx context.Context, scheduleID string) (*Schedule, error) {
	const op = "processor.RetrieveSchedule"
	params := &stripe.SubscriptionScheduleParams{}
	params.Context = ctx

	sched, err := c.sc.SubscriptionSchedules.Get(scheduleID, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return convertSchedule(sched), nil
}

// CancelSchedule отменяет график и возвращает его с заполненным canceled_at.
func (c *Client) CancelSchedule(ctx context.Context, scheduleID string) (*Schedule, error) {
	const op = "processor.CancelSchedule"
	params := &stripe.SubscriptionScheduleCancelParams{}
	params.Context = ctx

	sched, err := c.sc.SubscriptionSchedules.Cancel(scheduleID, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return convertSchedule(sched), nil
}

// CreateSetupIntent создаёт setup intent с картой и мандатом на
// периодическое списание с параметрами тарифа.
func (c *Client) CreateSetupIntent(ctx context.Context, req SetupIntentParams) (*SetupIntent, error) {
	const op = "processor.CreateSetupIntent"

	params := &stripe.SetupIntentParams{
		Customer:           stripe.String(req.CustomerID),
		PaymentMethod:      stripe.String(req.PaymentMethodID),
		Confirm:            stripe.Bool(true),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		PaymentMethodOptions: &stripe.SetupIntentPaymentMethodOptionsParams{
			Card: &stripe.SetupIntentPaymentMethodOptionsCardParams{
				MandateOptions: &stripe.SetupIntentPaymentMethodOptionsCardMandateOptionsParams{
					Amount:        stripe.Int64(req.Amount),
					AmountType:    stripe.String("fixed"),
					Currency:      stripe.String(req.Currency),
					Interval:      stripe.String(req.Interval),
					IntervalCount: stripe.Int64(int64(req.IntervalCount)),
					Reference:     stripe.String(req.Reference),
					StartDate:     stripe.Int64(time.Now().Unix()),
				},
			},
		},
	}
	params.Context = ctx

	si, err := c.sc.SetupIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &SetupIntent{
		ID:           si.ID,
		Status:       string(si.Status),
		ClientSecret: si.ClientSecret,
	}, nil
}

func convertSchedule(s *stripe.SubscriptionSchedule) *Schedule {
	out := &Schedule{
		ID:     s.ID,
		Status: string(s.Status),
	}
	if s.Subscription != nil {
		out.SubscriptionID = s.Subscription.ID
	}
	if s.CanceledAt > 0 {
		t := time.Unix(s.CanceledAt, 0).UTC()
		out.CanceledAt = &t
	}
	for _, p := range s.Phases {
		phase := Phase{
			StartDate: time.Unix(p.StartDate, 0).UTC(),
			EndDate:   time.Unix(p.EndDate, 0).UTC(),
		}
		if p.TrialEnd > 0 {
			t := time.Unix(p.TrialEnd, 0).UTC()
			phase.TrialEnd = &t
		}
		out.Phases = append(out.Phases, phase)
	}
	return out
}
