package memory

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"rentaldesk/console/internal/domain"
	"rentaldesk/console/internal/logging"
	"rentaldesk/console/internal/store"
	"rentaldesk/console/internal/xid"
)

type userAccount struct {
	user domain.User
	hash string
}

// Store is an in-process stand-in for the rental backend. It keeps the same
// bookkeeping the backend does: rentals take stock out, returns put it back
// and open a balance, payments settle balances.
type Store struct {
	mu sync.RWMutex

	customersByID map[string]domain.Customer
	itemsByID     map[string]domain.Item
	uoms          []domain.UOM
	stock         map[string]decimal.Decimal
	usersByID     map[string]userAccount
	inwardsByID   map[string]domain.Inward
	onRentsByNo   map[string]domain.OnRent
	returnsByNo   map[string]domain.OnRentReturn
	balancesByID  map[string]domain.ReturnBalance
	payments      []domain.Payment
	credits       []domain.CustomerCredit
	deliveries    []domain.ReportDelivery

	seq          map[string]int
	passwordCost int
	now          func() time.Time
}

type Option func(*Store)

// WithPasswordCost sets the bcrypt cost for stored passwords. Tests use
// bcrypt.MinCost.
func WithPasswordCost(cost int) Option {
	return func(s *Store) {
		s.passwordCost = cost
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

var _ store.Backend = (*Store)(nil)

func New(opts ...Option) *Store {
	s := &Store{
		customersByID: make(map[string]domain.Customer),
		itemsByID:     make(map[string]domain.Item),
		stock:         make(map[string]decimal.Decimal),
		usersByID:     make(map[string]userAccount),
		inwardsByID:   make(map[string]domain.Inward),
		onRentsByNo:   make(map[string]domain.OnRent),
		returnsByNo:   make(map[string]domain.OnRentReturn),
		balancesByID:  make(map[string]domain.ReturnBalance),
		seq:           make(map[string]int),
		passwordCost:  bcrypt.DefaultCost,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewSeeded returns a store with an admin user, the two units of measure and a
// handful of stocked items. The admin credentials come from SEED_ADMIN_EMAIL
// and SEED_ADMIN_PASSWORD, falling back to dev defaults.
func NewSeeded(opts ...Option) *Store {
	s := New(opts...)

	email := envOr("SEED_ADMIN_EMAIL", "admin@rentaldesk.local")
	password := envOr("SEED_ADMIN_PASSWORD", "admin123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" {
		logging.Default().WithComponent("memory-store").Warnw("using default dev credentials, set SEED_ADMIN_PASSWORD to override", "email", email)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.passwordCost)
	if err != nil {
		panic(fmt.Sprintf("hash seed password: %v", err))
	}
	admin := domain.User{
		ID:        "user-admin",
		FirstName: "Admin",
		LastName:  "User",
		Email:     email,
		Mobile:    "9000000000",
		IsActive:  true,
		CreatedAt: s.now(),
	}
	s.usersByID[admin.ID] = userAccount{user: admin, hash: string(hash)}

	s.uoms = []domain.UOM{
		{ID: "uom-qty", Name: domain.UOMQty},
		{ID: "uom-weight", Name: domain.UOMWeight},
	}

	for _, seed := range []struct {
		item domain.Item
		qty  int64
	}{
		{domain.Item{ID: "item-prop", ItemName: "Steel Prop", ItemCode: "PROP", Description: "Adjustable steel prop 3m", IsActive: true}, 200},
		{domain.Item{ID: "item-plate", ItemName: "Shuttering Plate", ItemCode: "PLATE", Description: "600x300 shuttering plate", IsActive: true}, 150},
		{domain.Item{ID: "item-pipe", ItemName: "Scaffolding Pipe", ItemCode: "PIPE", Description: "MS pipe sold by weight", IsActive: true}, 500},
		{domain.Item{ID: "item-jack", ItemName: "Base Jack", ItemCode: "JACK", Description: "Screw base jack", IsActive: true}, 80},
	} {
		s.itemsByID[seed.item.ID] = seed.item
		s.stock[seed.item.ID] = decimal.NewFromInt(seed.qty)
	}

	customer := domain.Customer{
		ID:           "cust-acme",
		CustomerName: "Acme Builders",
		Email:        "accounts@acme.example",
		Mobile:       "9876543210",
		Address:      "12 Ring Road, Pune",
		IsActive:     true,
		CreatedAt:    s.now(),
	}
	s.customersByID[customer.ID] = customer

	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) next(prefix string) string {
	s.seq[prefix]++
	return xid.DocumentNo(prefix, s.seq[prefix])
}

func (s *Store) Login(_ context.Context, email string, password string) (string, *domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = strings.ToLower(strings.TrimSpace(email))
	for _, account := range s.usersByID {
		if strings.ToLower(account.user.Email) != email {
			continue
		}
		if !account.user.IsActive {
			return "", nil, store.ErrUnauthorized
		}
		if bcrypt.CompareHashAndPassword([]byte(account.hash), []byte(password)) != nil {
			return "", nil, store.ErrUnauthorized
		}
		user := account.user
		return xid.New("tok"), &user, nil
	}
	return "", nil, store.ErrUnauthorized
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := slices.Collect(maps.Values(s.customersByID))
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return strings.Compare(strings.ToLower(a.CustomerName), strings.ToLower(b.CustomerName))
	})
	return customers, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &customer, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(customer.CustomerName) == "" {
		return nil, store.ErrInvalidRequest
	}
	if s.customerTaken(customer.CustomerName, customer.Email, "") {
		return nil, store.ErrConflict
	}
	customer.ID = xid.New("cust")
	customer.IsActive = true
	customer.CreatedAt = s.now()
	s.customersByID[customer.ID] = customer
	return &customer, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.customersByID[customer.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if s.customerTaken(customer.CustomerName, customer.Email, customer.ID) {
		return nil, store.ErrConflict
	}
	customer.IsActive = existing.IsActive
	customer.CreatedAt = existing.CreatedAt
	s.customersByID[customer.ID] = customer
	return &customer, nil
}

func (s *Store) customerTaken(name string, email string, exceptID string) bool {
	for id, c := range s.customersByID {
		if id == exceptID {
			continue
		}
		if strings.EqualFold(c.CustomerName, name) {
			return true
		}
		if email != "" && strings.EqualFold(c.Email, email) {
			return true
		}
	}
	return false
}

func (s *Store) DeleteCustomer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customersByID[id]; !ok {
		return store.ErrNotFound
	}
	for _, rental := range s.onRentsByNo {
		if rental.CustomerID == id {
			return store.ErrConflict
		}
	}
	delete(s.customersByID, id)
	return nil
}

func (s *Store) CustomerNameExists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name = strings.TrimSpace(name)
	for _, c := range s.customersByID {
		if strings.EqualFold(c.CustomerName, name) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CustomerEmailExists(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = strings.TrimSpace(email)
	for _, c := range s.customersByID {
		if strings.EqualFold(c.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListItems(_ context.Context) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := slices.Collect(maps.Values(s.itemsByID))
	slices.SortFunc(items, func(a, b domain.Item) int {
		return strings.Compare(a.ItemName, b.ItemName)
	})
	return items, nil
}

func (s *Store) GetItem(_ context.Context, id string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.itemsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &item, nil
}

func (s *Store) CreateItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(item.ItemName) == "" {
		return nil, store.ErrInvalidRequest
	}
	for _, existing := range s.itemsByID {
		if strings.EqualFold(existing.ItemName, item.ItemName) {
			return nil, store.ErrConflict
		}
	}
	item.ID = xid.New("item")
	item.IsActive = true
	s.itemsByID[item.ID] = item
	s.stock[item.ID] = decimal.Zero
	return &item, nil
}

func (s *Store) UpdateItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.itemsByID[item.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	item.IsActive = existing.IsActive
	s.itemsByID[item.ID] = item
	return &item, nil
}

func (s *Store) DeleteItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.itemsByID[id]; !ok {
		return store.ErrNotFound
	}
	for _, rental := range s.onRentsByNo {
		for _, line := range rental.Items {
			if line.ItemID == id {
				return store.ErrConflict
			}
		}
	}
	delete(s.itemsByID, id)
	delete(s.stock, id)
	return nil
}

func (s *Store) ToggleItemStatus(_ context.Context, id string) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.itemsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	item.IsActive = !item.IsActive
	s.itemsByID[id] = item
	return &item, nil
}

func (s *Store) ListUOMs(_ context.Context) ([]domain.UOM, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.uoms), nil
}

func (s *Store) CreateUOM(_ context.Context, uom domain.UOM) (*domain.UOM, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	uom.Name = strings.TrimSpace(uom.Name)
	if uom.Name == "" {
		return nil, store.ErrInvalidRequest
	}
	for _, existing := range s.uoms {
		if strings.EqualFold(existing.Name, uom.Name) {
			return nil, store.ErrConflict
		}
	}
	uom.ID = xid.New("uom")
	s.uoms = append(s.uoms, uom)
	return &uom, nil
}

func (s *Store) ListStock(_ context.Context) ([]domain.StockItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stock := make([]domain.StockItem, 0, len(s.stock))
	for itemID, qty := range s.stock {
		stock = append(stock, domain.StockItem{
			ItemID:   itemID,
			ItemName: s.itemsByID[itemID].ItemName,
			Qty:      qty,
		})
	}
	slices.SortFunc(stock, func(a, b domain.StockItem) int {
		return strings.Compare(a.ItemName, b.ItemName)
	})
	return stock, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.User, 0, len(s.usersByID))
	for _, account := range s.usersByID {
		users = append(users, account.user)
	}
	slices.SortFunc(users, func(a, b domain.User) int {
		return strings.Compare(a.Email, b.Email)
	})
	return users, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.User, password string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(user.Email) == "" || strings.TrimSpace(password) == "" {
		return nil, store.ErrInvalidRequest
	}
	if s.emailTaken(user.Email, "") {
		return nil, store.ErrConflict
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.passwordCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user.ID = xid.New("user")
	user.IsActive = true
	user.CreatedAt = s.now()
	s.usersByID[user.ID] = userAccount{user: user, hash: string(hash)}
	return &user, nil
}

func (s *Store) UpdateUser(_ context.Context, user domain.User, password string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.usersByID[user.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if s.emailTaken(user.Email, user.ID) {
		return nil, store.ErrConflict
	}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), s.passwordCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		account.hash = string(hash)
	}
	user.IsActive = account.user.IsActive
	user.CreatedAt = account.user.CreatedAt
	account.user = user
	s.usersByID[user.ID] = account
	return &user, nil
}

func (s *Store) emailTaken(email string, exceptID string) bool {
	for id, account := range s.usersByID {
		if id != exceptID && strings.EqualFold(account.user.Email, email) {
			return true
		}
	}
	return false
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usersByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.usersByID, id)
	return nil
}

func (s *Store) ListInwards(_ context.Context) ([]domain.Inward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inwards := make([]domain.Inward, 0, len(s.inwardsByID))
	for _, inward := range s.inwardsByID {
		inwards = append(inwards, cloneInward(inward))
	}
	slices.SortFunc(inwards, func(a, b domain.Inward) int {
		return strings.Compare(a.InwardNo, b.InwardNo)
	})
	return inwards, nil
}

func (s *Store) GetInward(_ context.Context, id string) (*domain.Inward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inward, ok := s.inwardsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneInward(inward)
	return &dup, nil
}

func (s *Store) CreateInward(_ context.Context, inward domain.Inward) (*domain.Inward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stock := maps.Clone(s.stock)
	if err := s.applyInward(stock, inward, decimal.NewFromInt(1)); err != nil {
		return nil, err
	}
	inward.ID = xid.New("inward")
	if inward.InwardNo == "" {
		inward.InwardNo = s.next("IN")
	}
	s.stock = stock
	s.inwardsByID[inward.ID] = cloneInward(inward)
	return &inward, nil
}

func (s *Store) UpdateInward(_ context.Context, inward domain.Inward) (*domain.Inward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.inwardsByID[inward.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	stock := maps.Clone(s.stock)
	if err := s.applyInward(stock, existing, decimal.NewFromInt(-1)); err != nil {
		return nil, err
	}
	if err := s.applyInward(stock, inward, decimal.NewFromInt(1)); err != nil {
		return nil, err
	}
	if inward.InwardNo == "" {
		inward.InwardNo = existing.InwardNo
	}
	s.stock = stock
	s.inwardsByID[inward.ID] = cloneInward(inward)
	return &inward, nil
}

func (s *Store) DeleteInward(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.inwardsByID[id]
	if !ok {
		return store.ErrNotFound
	}
	stock := maps.Clone(s.stock)
	if err := s.applyInward(stock, existing, decimal.NewFromInt(-1)); err != nil {
		return err
	}
	s.stock = stock
	delete(s.inwardsByID, id)
	return nil
}

// applyInward adds (sign 1) or removes (sign -1) an inward's quantities.
// Weight-measured lines count by weight.
func (s *Store) applyInward(stock map[string]decimal.Decimal, inward domain.Inward, sign decimal.Decimal) error {
	if len(inward.Items) == 0 {
		return store.ErrInvalidRequest
	}
	for _, line := range inward.Items {
		if _, ok := s.itemsByID[line.ItemID]; !ok {
			return fmt.Errorf("item %s: %w", line.ItemID, store.ErrNotFound)
		}
		qty := line.Qty
		if line.UOM == domain.UOMWeight {
			qty = line.Weight
		}
		next := stock[line.ItemID].Add(qty.Mul(sign))
		if next.IsNegative() {
			return store.ErrInsufficientStock
		}
		stock[line.ItemID] = next
	}
	return nil
}

func (s *Store) ListOnRents(_ context.Context) ([]domain.OnRent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rentals := make([]domain.OnRent, 0, len(s.onRentsByNo))
	for _, rental := range s.onRentsByNo {
		rentals = append(rentals, cloneOnRent(rental))
	}
	slices.SortFunc(rentals, func(a, b domain.OnRent) int {
		return strings.Compare(a.OnRentNo, b.OnRentNo)
	})
	return rentals, nil
}

func (s *Store) GetOnRent(_ context.Context, onRentNo string) (*domain.OnRent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rental, ok := s.onRentsByNo[onRentNo]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneOnRent(rental)
	return &dup, nil
}

func (s *Store) CreateOnRent(_ context.Context, rental domain.OnRent) (*domain.OnRent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customersByID[rental.CustomerID]; !ok {
		return nil, fmt.Errorf("customer %s: %w", rental.CustomerID, store.ErrNotFound)
	}
	if len(rental.Items) == 0 {
		return nil, store.ErrInvalidRequest
	}
	stock := maps.Clone(s.stock)
	items := make([]domain.RentedItem, 0, len(rental.Items))
	for _, line := range rental.Items {
		item, ok := s.itemsByID[line.ItemID]
		if !ok || !item.IsActive {
			return nil, fmt.Errorf("item %s: %w", line.ItemID, store.ErrInvalidRequest)
		}
		if !line.QtyOrWeight.IsPositive() {
			return nil, store.ErrInvalidRequest
		}
		left := stock[line.ItemID].Sub(line.QtyOrWeight)
		if left.IsNegative() {
			return nil, store.ErrInsufficientStock
		}
		stock[line.ItemID] = left
		items = append(items, domain.RentedItem{
			ItemID:       line.ItemID,
			ItemName:     item.ItemName,
			UOM:          line.UOM,
			QtyOrWeight:  line.QtyOrWeight,
			QtyReturn:    decimal.Zero,
			RemainingQty: line.QtyOrWeight,
			PerDayRate:   line.PerDayRate,
			Amount:       decimal.Zero,
		})
	}

	rental.ID = xid.New("onrent")
	rental.OnRentNo = s.next("OR")
	rental.CustomerName = s.customersByID[rental.CustomerID].CustomerName
	rental.Items = items
	rental.IsActive = true
	s.stock = stock
	s.onRentsByNo[rental.OnRentNo] = cloneOnRent(rental)
	return &rental, nil
}

// UpdateOnRent rewrites a rental's lines. Lines keep the quantities already
// returned against them, so a line cannot shrink below its returned quantity.
func (s *Store) UpdateOnRent(_ context.Context, rental domain.OnRent) (*domain.OnRent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.onRentsByNo[rental.OnRentNo]
	if !ok {
		return nil, store.ErrNotFound
	}
	if len(rental.Items) == 0 {
		return nil, store.ErrInvalidRequest
	}
	if _, ok := s.customersByID[rental.CustomerID]; !ok {
		return nil, fmt.Errorf("customer %s: %w", rental.CustomerID, store.ErrNotFound)
	}

	stock := maps.Clone(s.stock)
	previous := make(map[string]domain.RentedItem, len(existing.Items))
	for _, line := range existing.Items {
		previous[line.ItemID] = line
		stock[line.ItemID] = stock[line.ItemID].Add(line.RemainingQty)
	}

	items := make([]domain.RentedItem, 0, len(rental.Items))
	for _, line := range rental.Items {
		item, ok := s.itemsByID[line.ItemID]
		if !ok {
			return nil, fmt.Errorf("item %s: %w", line.ItemID, store.ErrInvalidRequest)
		}
		next := previous[line.ItemID]
		delete(previous, line.ItemID)
		if line.QtyOrWeight.LessThan(next.QtyReturn) || !line.QtyOrWeight.IsPositive() {
			return nil, store.ErrInvalidRequest
		}
		next.ItemID = line.ItemID
		next.ItemName = item.ItemName
		next.UOM = line.UOM
		next.QtyOrWeight = line.QtyOrWeight
		next.PerDayRate = line.PerDayRate
		next.RemainingQty = line.QtyOrWeight.Sub(next.QtyReturn)
		next.IsCompleted = next.RemainingQty.IsZero()
		left := stock[line.ItemID].Sub(next.RemainingQty)
		if left.IsNegative() {
			return nil, store.ErrInsufficientStock
		}
		stock[line.ItemID] = left
		items = append(items, next)
	}
	for _, dropped := range previous {
		if dropped.QtyReturn.IsPositive() {
			return nil, store.ErrConflict
		}
	}

	existing.OnRentDate = rental.OnRentDate
	existing.CustomerID = rental.CustomerID
	existing.CustomerName = s.customersByID[rental.CustomerID].CustomerName
	existing.VehicleDetails = rental.VehicleDetails
	existing.Items = items
	s.stock = stock
	s.onRentsByNo[existing.OnRentNo] = cloneOnRent(existing)
	return &existing, nil
}

func (s *Store) DeleteOnRent(_ context.Context, onRentNo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rental, ok := s.onRentsByNo[onRentNo]
	if !ok {
		return store.ErrNotFound
	}
	for _, line := range rental.Items {
		if line.QtyReturn.IsPositive() {
			return store.ErrConflict
		}
	}
	for _, line := range rental.Items {
		s.stock[line.ItemID] = s.stock[line.ItemID].Add(line.RemainingQty)
	}
	delete(s.onRentsByNo, onRentNo)
	return nil
}

func (s *Store) ToggleOnRent(_ context.Context, id string) (*domain.OnRent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for no, rental := range s.onRentsByNo {
		if rental.ID != id {
			continue
		}
		rental.IsActive = !rental.IsActive
		s.onRentsByNo[no] = rental
		dup := cloneOnRent(rental)
		return &dup, nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListOnRentReturns(_ context.Context) ([]domain.OnRentReturn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	returns := make([]domain.OnRentReturn, 0, len(s.returnsByNo))
	for _, ret := range s.returnsByNo {
		returns = append(returns, cloneReturn(ret))
	}
	slices.SortFunc(returns, func(a, b domain.OnRentReturn) int {
		return strings.Compare(a.OnRentReturnNo, b.OnRentReturnNo)
	})
	return returns, nil
}

func (s *Store) GetOnRentReturn(_ context.Context, returnNo string) (*domain.OnRentReturn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ret, ok := s.returnsByNo[returnNo]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneReturn(ret)
	return &dup, nil
}

func (s *Store) CreateOnRentReturn(_ context.Context, ret domain.OnRentReturn) (*domain.OnRentReturn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customersByID[ret.CustomerID]; !ok {
		return nil, fmt.Errorf("customer %s: %w", ret.CustomerID, store.ErrNotFound)
	}
	work := s.workingSet()
	if err := work.apply(ret, decimal.NewFromInt(1)); err != nil {
		return nil, err
	}

	ret.ID = xid.New("return")
	if ret.OnRentReturnNo == "" {
		ret.OnRentReturnNo = s.next("RT")
	}
	ret.CustomerName = s.customersByID[ret.CustomerID].CustomerName
	ret.TotalAmount = sumAmounts(ret.Items)

	s.commit(work)
	s.returnsByNo[ret.OnRentReturnNo] = cloneReturn(ret)
	s.balancesByID[ret.ID] = domain.ReturnBalance{
		ID:            ret.ID,
		ReturnNumber:  ret.OnRentReturnNo,
		CustomerID:    ret.CustomerID,
		TotalAmount:   ret.TotalAmount,
		BalanceAmount: ret.TotalAmount,
		PaidAmount:    decimal.Zero,
	}
	return &ret, nil
}

func (s *Store) UpdateOnRentReturn(_ context.Context, ret domain.OnRentReturn) (*domain.OnRentReturn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.returnsByNo[ret.OnRentReturnNo]
	if !ok {
		return nil, store.ErrNotFound
	}
	work := s.workingSet()
	if err := work.apply(existing, decimal.NewFromInt(-1)); err != nil {
		return nil, err
	}
	if err := work.apply(ret, decimal.NewFromInt(1)); err != nil {
		return nil, err
	}

	ret.ID = existing.ID
	ret.CustomerID = existing.CustomerID
	ret.CustomerName = existing.CustomerName
	ret.TotalAmount = sumAmounts(ret.Items)

	balance := s.balancesByID[existing.ID]
	balance.TotalAmount = ret.TotalAmount
	balance.BalanceAmount = ret.TotalAmount.Sub(balance.PaidAmount)
	if balance.BalanceAmount.IsNegative() {
		return nil, store.ErrConflict
	}
	balance.IsReturnCompleted = balance.BalanceAmount.IsZero() && balance.PaidAmount.IsPositive()

	s.commit(work)
	s.returnsByNo[ret.OnRentReturnNo] = cloneReturn(ret)
	s.balancesByID[ret.ID] = balance
	return &ret, nil
}

func (s *Store) DeleteOnRentReturn(_ context.Context, returnNo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.returnsByNo[returnNo]
	if !ok {
		return store.ErrNotFound
	}
	if s.balancesByID[existing.ID].PaidAmount.IsPositive() {
		return store.ErrConflict
	}
	work := s.workingSet()
	if err := work.apply(existing, decimal.NewFromInt(-1)); err != nil {
		return err
	}
	s.commit(work)
	delete(s.returnsByNo, returnNo)
	delete(s.balancesByID, existing.ID)
	return nil
}

// returnWork is a scratch copy of the rentals and stock a return touches, so a
// failed return leaves the store unchanged.
type returnWork struct {
	rentals map[string]domain.OnRent
	stock   map[string]decimal.Decimal
}

func (s *Store) workingSet() *returnWork {
	rentals := make(map[string]domain.OnRent, len(s.onRentsByNo))
	for no, rental := range s.onRentsByNo {
		rentals[no] = cloneOnRent(rental)
	}
	return &returnWork{rentals: rentals, stock: maps.Clone(s.stock)}
}

func (s *Store) commit(work *returnWork) {
	s.onRentsByNo = work.rentals
	s.stock = work.stock
}

// apply books (sign 1) or reverses (sign -1) a return against its rentals.
func (w *returnWork) apply(ret domain.OnRentReturn, sign decimal.Decimal) error {
	if len(ret.Items) == 0 {
		return store.ErrInvalidRequest
	}
	for _, line := range ret.Items {
		rental, ok := w.rentals[line.OnRentNo]
		if !ok {
			return fmt.Errorf("on rent %s: %w", line.OnRentNo, store.ErrNotFound)
		}
		if ret.CustomerID != "" && rental.CustomerID != ret.CustomerID {
			return store.ErrInvalidRequest
		}
		idx := slices.IndexFunc(rental.Items, func(item domain.RentedItem) bool {
			return item.ItemID == line.ItemID
		})
		if idx < 0 {
			return fmt.Errorf("item %s on %s: %w", line.ItemID, line.OnRentNo, store.ErrNotFound)
		}
		if !line.QtyReturn.IsPositive() {
			return store.ErrInvalidRequest
		}

		item := rental.Items[idx]
		delta := line.QtyReturn.Mul(sign)
		item.QtyReturn = item.QtyReturn.Add(delta)
		item.RemainingQty = item.RemainingQty.Sub(delta)
		item.Amount = item.Amount.Add(line.Amount.Mul(sign))
		if item.RemainingQty.IsNegative() || item.QtyReturn.IsNegative() {
			return store.ErrInvalidRequest
		}
		w.stock[line.ItemID] = w.stock[line.ItemID].Add(delta)
		if w.stock[line.ItemID].IsNegative() {
			return store.ErrInsufficientStock
		}
		item.IsCompleted = item.RemainingQty.IsZero()
		if sign.IsPositive() {
			returnDate := ret.OnRentReturnDate
			item.OnRentReturnDate = &returnDate
			item.UsedDays = line.UsedDays
		} else if item.QtyReturn.IsZero() {
			item.OnRentReturnDate = nil
			item.UsedDays = 0
		}
		rental.Items[idx] = item
		w.rentals[line.OnRentNo] = rental
	}
	return nil
}

func sumAmounts(items []domain.ReturnedItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}
	return total
}

func (s *Store) ListPayments(_ context.Context) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payments := make([]domain.Payment, 0, len(s.payments))
	for i := len(s.payments) - 1; i >= 0; i-- {
		payments = append(payments, clonePayment(s.payments[i]))
	}
	return payments, nil
}

// CustomerReturns lists the customer's returns that still carry a balance.
func (s *Store) CustomerReturns(_ context.Context, customerID string) ([]domain.ReturnBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.customersByID[customerID]; !ok {
		return nil, store.ErrNotFound
	}
	balances := make([]domain.ReturnBalance, 0)
	for _, balance := range s.balancesByID {
		if balance.CustomerID == customerID && balance.BalanceAmount.IsPositive() {
			balances = append(balances, balance)
		}
	}
	slices.SortFunc(balances, func(a, b domain.ReturnBalance) int {
		return strings.Compare(a.ReturnNumber, b.ReturnNumber)
	})
	return balances, nil
}

func (s *Store) CreatePayment(_ context.Context, payment domain.Payment) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, ok := s.customersByID[payment.CustomerID]
	if !ok {
		return nil, fmt.Errorf("customer %s: %w", payment.CustomerID, store.ErrNotFound)
	}
	if !payment.PaidAmount.IsPositive() || len(payment.AllocatedReturns) == 0 {
		return nil, store.ErrInvalidRequest
	}

	payment.AllocatedReturns = slices.Clone(payment.AllocatedReturns)
	updated := make(map[string]domain.ReturnBalance, len(payment.AllocatedReturns))
	allocated := decimal.Zero
	for i, alloc := range payment.AllocatedReturns {
		balance, ok := updated[alloc.ReturnID]
		if !ok {
			balance, ok = s.balancesByID[alloc.ReturnID]
		}
		if !ok || balance.CustomerID != payment.CustomerID {
			return nil, fmt.Errorf("return %s: %w", alloc.ReturnID, store.ErrNotFound)
		}
		if !alloc.AllocatedAmount.IsPositive() || alloc.AllocatedAmount.GreaterThan(balance.BalanceAmount) {
			return nil, store.ErrInvalidRequest
		}
		balance.PaidAmount = balance.PaidAmount.Add(alloc.AllocatedAmount)
		balance.BalanceAmount = balance.BalanceAmount.Sub(alloc.AllocatedAmount)
		balance.IsReturnCompleted = balance.BalanceAmount.IsZero()
		updated[alloc.ReturnID] = balance
		payment.AllocatedReturns[i].ReturnNumber = balance.ReturnNumber
		allocated = allocated.Add(alloc.AllocatedAmount)
	}
	if allocated.GreaterThan(payment.PaidAmount) {
		return nil, store.ErrInvalidRequest
	}

	maps.Copy(s.balancesByID, updated)
	payment.ID = xid.New("pay")
	payment.CustomerName = customer.CustomerName
	if payment.CustomerEmail == "" {
		payment.CustomerEmail = customer.Email
	}
	payment.CreatedAt = s.now()
	s.payments = append(s.payments, clonePayment(payment))
	return &payment, nil
}

func (s *Store) AddCustomerCredit(_ context.Context, credit domain.CustomerCredit) (*domain.CustomerCredit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customersByID[credit.CustomerID]; !ok {
		return nil, fmt.Errorf("customer %s: %w", credit.CustomerID, store.ErrNotFound)
	}
	if !credit.Amount.IsPositive() {
		return nil, store.ErrInvalidRequest
	}
	credit.ID = xid.New("credit")
	if credit.PaymentDate.IsZero() {
		credit.PaymentDate = s.now()
	}
	s.credits = append(s.credits, credit)
	return &credit, nil
}

// Credits lists recorded customer credits, oldest first.
func (s *Store) Credits() []domain.CustomerCredit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.credits)
}

func (s *Store) SendReport(_ context.Context, delivery domain.ReportDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customersByID[delivery.CustomerID]; !ok {
		return fmt.Errorf("customer %s: %w", delivery.CustomerID, store.ErrNotFound)
	}
	if delivery.PDFBase64 == "" {
		return store.ErrInvalidRequest
	}
	s.deliveries = append(s.deliveries, delivery)
	return nil
}

// Deliveries lists the statements handed over for emailing, oldest first.
func (s *Store) Deliveries() []domain.ReportDelivery {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.deliveries)
}

func cloneInward(src domain.Inward) domain.Inward {
	dup := src
	dup.Items = slices.Clone(src.Items)
	return dup
}

func cloneOnRent(src domain.OnRent) domain.OnRent {
	dup := src
	dup.Items = make([]domain.RentedItem, len(src.Items))
	for i, item := range src.Items {
		if item.OnRentReturnDate != nil {
			ts := *item.OnRentReturnDate
			item.OnRentReturnDate = &ts
		}
		dup.Items[i] = item
	}
	return dup
}

func cloneReturn(src domain.OnRentReturn) domain.OnRentReturn {
	dup := src
	dup.Items = slices.Clone(src.Items)
	return dup
}

func clonePayment(src domain.Payment) domain.Payment {
	dup := src
	dup.AllocatedReturns = slices.Clone(src.AllocatedReturns)
	return dup
}
