package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/marketplace-api/internal/dto"
	"github.com/flicky/marketplace-api/internal/model"
	"github.com/flicky/marketplace-api/internal/repository"
)

// memStore is an in-memory implementation of every repository plus a TxManager.
// Transactions are serialized and roll back to a snapshot when fn fails.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	users     map[string]model.User
	products  map[uuid.UUID]model.Product
	carts     map[uuid.UUID]model.Cart
	addresses map[uuid.UUID]model.Address
	orders    map[uuid.UUID]model.Order
	history   map[historyKey]model.HistoryOrder

	maxAttempts int
	// conflicts makes the next N transaction attempts fail as if they lost a race.
	conflicts int
	attempts  int
}

type historyKey struct{ order, seller uuid.UUID }

type memTxKey struct{}

var errSimulatedConflict = errors.New("simulated serialization failure")

func newMemStore() *memStore {
	return &memStore{
		users:       map[string]model.User{},
		products:    map[uuid.UUID]model.Product{},
		carts:       map[uuid.UUID]model.Cart{},
		addresses:   map[uuid.UUID]model.Address{},
		orders:      map[uuid.UUID]model.Order{},
		history:     map[historyKey]model.HistoryOrder{},
		maxAttempts: 3,
	}
}

type memSnapshot struct {
	products  map[uuid.UUID]model.Product
	carts     map[uuid.UUID]model.Cart
	addresses map[uuid.UUID]model.Address
	orders    map[uuid.UUID]model.Order
	history   map[historyKey]model.HistoryOrder
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		products:  make(map[uuid.UUID]model.Product, len(s.products)),
		carts:     make(map[uuid.UUID]model.Cart, len(s.carts)),
		addresses: make(map[uuid.UUID]model.Address, len(s.addresses)),
		orders:    make(map[uuid.UUID]model.Order, len(s.orders)),
		history:   make(map[historyKey]model.HistoryOrder, len(s.history)),
	}
	for k, v := range s.products {
		snap.products[k] = cloneProduct(v)
	}
	for k, v := range s.carts {
		snap.carts[k] = cloneCart(v)
	}
	for k, v := range s.addresses {
		snap.addresses[k] = v
	}
	for k, v := range s.orders {
		snap.orders[k] = cloneOrder(v)
	}
	for k, v := range s.history {
		snap.history[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products, s.carts, s.addresses, s.orders, s.history = snap.products, snap.carts, snap.addresses, snap.orders, snap.history
}

// --- TxManager ---

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	var lastErr error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		s.attempts++
		if s.conflicts > 0 {
			s.conflicts--
			lastErr = errSimulatedConflict
			continue
		}
		snap := s.snapshot()
		err := fn(context.WithValue(ctx, memTxKey{}, true))
		if err == nil {
			return nil
		}
		s.restore(snap)
		return err
	}
	return fmt.Errorf("%w after %d attempts: %v", repository.ErrContention, s.maxAttempts, lastErr)
}

// --- users ---

type memUserRepo struct{ s *memStore }

func (r memUserRepo) Create(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[user.Email]; ok {
		return repository.ErrDuplicate
	}
	user.ID = uuid.New()
	user.CreatedAt, user.UpdatedAt = time.Now(), time.Now()
	r.s.users[user.Email] = *user
	return nil
}

func (r memUserRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, nil
}

func (r memUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u, ok := r.s.users[email]; ok {
		return &u, nil
	}
	return nil, nil
}

func (r memUserRepo) List(_ context.Context) ([]model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	users := make([]model.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b model.User) int { return strings.Compare(a.Email, b.Email) })
	return users, nil
}

func (r memUserRepo) update(id uuid.UUID, fn func(*model.User)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for email, u := range r.s.users {
		if u.ID == id {
			fn(&u)
			r.s.users[email] = u
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r memUserRepo) UpdateRole(_ context.Context, id uuid.UUID, role string) error {
	return r.update(id, func(u *model.User) { u.Role = role })
}

func (r memUserRepo) UpdateProfileImage(_ context.Context, id uuid.UUID, url string) error {
	return r.update(id, func(u *model.User) { u.ProfileImage = url })
}

func (r memUserRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for email, u := range r.s.users {
		if u.ID == id {
			delete(r.s.users, email)
			return nil
		}
	}
	return repository.ErrNotFound
}

// --- products ---

type memProductRepo struct{ s *memStore }

func (r memProductRepo) Create(_ context.Context, p *model.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.products {
		if existing.Name == p.Name && existing.Description == p.Description {
			return repository.ErrDuplicate
		}
	}
	p.ID = uuid.New()
	p.Version = 1
	p.CreatedAt, p.UpdatedAt = time.Now(), time.Now()
	r.s.products[p.ID] = cloneProduct(*p)
	return nil
}

func (r memProductRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, nil
	}
	p = cloneProduct(p)
	return &p, nil
}

func (r memProductRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	return r.GetByID(ctx, id)
}

func (r memProductRepo) GetManyForUpdate(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[uuid.UUID]*model.Product, len(ids))
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok {
			p = cloneProduct(p)
			out[id] = &p
		}
	}
	return out, nil
}

func (r memProductRepo) List(_ context.Context, f repository.ProductFilter) ([]model.Product, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []model.Product
	for _, p := range r.s.products {
		if f.SellerID != uuid.Nil && p.SellerID != f.SellerID {
			continue
		}
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(p.Name+" "+p.Description), strings.ToLower(f.Search)) {
			continue
		}
		all = append(all, cloneProduct(p))
	}
	slices.SortFunc(all, func(a, b model.Product) int { return strings.Compare(a.Name, b.Name) })
	total := len(all)
	if f.Offset >= len(all) {
		return nil, total, nil
	}
	all = all[f.Offset:]
	if f.Limit > 0 && len(all) > f.Limit {
		all = all[:f.Limit]
	}
	return all, total, nil
}

func (r memProductRepo) ExistsByNameAndDescription(_ context.Context, name, description string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.products {
		if p.Name == name && p.Description == description {
			return true, nil
		}
	}
	return false, nil
}

func (r memProductRepo) Update(_ context.Context, p *model.Product, expectedVersion int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.products[p.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if expectedVersion != 0 && current.Version != expectedVersion {
		return repository.ErrStaleVersion
	}
	p.Version = current.Version + 1
	p.UpdatedAt = time.Now()
	r.s.products[p.ID] = cloneProduct(*p)
	return nil
}

func (r memProductRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.products, id)
	return nil
}

func (r memProductRepo) AdjustStock(_ context.Context, id uuid.UUID, delta int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return repository.ErrNotFound
	}
	if p.Stock+delta < 0 {
		return repository.ErrNegativeStock
	}
	p.Stock += delta
	p.Version++
	r.s.products[id] = p
	return nil
}

// --- carts ---

type memCartRepo struct{ s *memStore }

func (r memCartRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*model.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.carts[userID]
	if !ok {
		return nil, nil
	}
	c = cloneCart(c)
	return &c, nil
}

func (r memCartRepo) GetForUpdate(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	return r.GetByUserID(ctx, userID)
}

func (r memCartRepo) GetOrCreateForUpdate(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	r.s.mu.Lock()
	if _, ok := r.s.carts[userID]; !ok {
		r.s.carts[userID] = model.Cart{ID: uuid.New(), UserID: userID, Items: []model.CartItem{}, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	}
	r.s.mu.Unlock()
	return r.GetByUserID(ctx, userID)
}

func (r memCartRepo) byID(cartID uuid.UUID) (model.Cart, bool) {
	for _, c := range r.s.carts {
		if c.ID == cartID {
			return c, true
		}
	}
	return model.Cart{}, false
}

func (r memCartRepo) AddItem(_ context.Context, cartID uuid.UUID, item model.CartItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.byID(cartID)
	if !ok {
		return repository.ErrNotFound
	}
	if _, exists := c.Item(item.ProductID); exists {
		return repository.ErrDuplicate
	}
	c.Items = append(c.Items, item)
	r.s.carts[c.UserID] = c
	return nil
}

func (r memCartRepo) UpdateItemQuantity(_ context.Context, cartID, productID uuid.UUID, quantity int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.byID(cartID)
	if !ok {
		return repository.ErrNotFound
	}
	item, ok := c.Item(productID)
	if !ok {
		return repository.ErrNotFound
	}
	item.Quantity = quantity
	r.s.carts[c.UserID] = c
	return nil
}

func (r memCartRepo) DeleteItem(_ context.Context, cartID, productID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.byID(cartID)
	if !ok {
		return nil
	}
	c.Items = slices.DeleteFunc(c.Items, func(i model.CartItem) bool { return i.ProductID == productID })
	r.s.carts[c.UserID] = c
	return nil
}

func (r memCartRepo) Delete(_ context.Context, cartID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c, ok := r.byID(cartID); ok {
		delete(r.s.carts, c.UserID)
	}
	return nil
}

// --- addresses ---

type memAddressRepo struct{ s *memStore }

func (r memAddressRepo) Create(_ context.Context, a *model.Address) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.addresses {
		if existing.BuyerID == a.BuyerID && existing.Street == a.Street && existing.City == a.City && existing.Zip == a.Zip {
			return repository.ErrDuplicate
		}
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	r.s.addresses[a.ID] = *a
	return nil
}

func (r memAddressRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Address, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if a, ok := r.s.addresses[id]; ok {
		return &a, nil
	}
	return nil, nil
}

func (r memAddressRepo) ListByBuyer(_ context.Context, buyerID uuid.UUID) ([]model.Address, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Address
	for _, a := range r.s.addresses {
		if a.BuyerID == buyerID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r memAddressRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.addresses[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.addresses, id)
	return nil
}

// --- orders ---

type memOrderRepo struct{ s *memStore }

func (r memOrderRepo) Create(_ context.Context, o *model.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o.ID = uuid.New()
	o.CreatedAt, o.UpdatedAt = time.Now(), time.Now()
	for i := range o.Groups {
		o.Groups[i].UpdatedAt = o.CreatedAt
	}
	r.s.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (r memOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, nil
	}
	o = cloneOrder(o)
	return &o, nil
}

func (r memOrderRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return r.GetByID(ctx, id)
}

func (r memOrderRepo) list(match func(model.Order) bool) []model.Order {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Order
	for _, o := range r.s.orders {
		if match(o) {
			out = append(out, cloneOrder(o))
		}
	}
	slices.SortFunc(out, func(a, b model.Order) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out
}

func (r memOrderRepo) ListByBuyer(_ context.Context, buyerID uuid.UUID) ([]model.Order, error) {
	return r.list(func(o model.Order) bool { return o.BuyerID == buyerID }), nil
}

func (r memOrderRepo) ListBySeller(_ context.Context, sellerID uuid.UUID) ([]model.Order, error) {
	return r.list(func(o model.Order) bool { _, ok := o.Group(sellerID); return ok }), nil
}

func (r memOrderRepo) ListArchivableIDs(_ context.Context, sellerID uuid.UUID) ([]uuid.UUID, error) {
	orders := r.list(func(o model.Order) bool { _, ok := o.Group(sellerID); return ok && !o.HasPending() })
	ids := make([]uuid.UUID, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	return ids, nil
}

func (r memOrderRepo) UpdateGroupStatus(_ context.Context, orderID, sellerID uuid.UUID, status model.OrderStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[orderID]
	if !ok {
		return repository.ErrNotFound
	}
	g, ok := o.Group(sellerID)
	if !ok {
		return repository.ErrNotFound
	}
	g.Status = status
	g.UpdatedAt = time.Now()
	r.s.orders[orderID] = o
	return nil
}

func (r memOrderRepo) RemoveGroup(_ context.Context, orderID, sellerID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[orderID]
	if !ok {
		return repository.ErrNotFound
	}
	before := len(o.Groups)
	o.Groups = slices.DeleteFunc(o.Groups, func(g model.OrderLineGroup) bool { return g.SellerID == sellerID })
	if len(o.Groups) == before {
		return repository.ErrNotFound
	}
	r.s.orders[orderID] = o
	return nil
}

func (r memOrderRepo) UpdateTotal(_ context.Context, orderID uuid.UUID, total decimal.Decimal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[orderID]
	if !ok {
		return repository.ErrNotFound
	}
	o.Total = total
	r.s.orders[orderID] = o
	return nil
}

func (r memOrderRepo) Delete(_ context.Context, orderID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.orders[orderID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.orders, orderID)
	return nil
}

// --- history ---

type memHistoryRepo struct{ s *memStore }

func (r memHistoryRepo) Insert(_ context.Context, h *model.HistoryOrder) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := historyKey{h.OriginalOrderID, h.SellerID}
	if _, ok := r.s.history[key]; ok {
		return false, nil
	}
	h.ID = uuid.New()
	h.ClearedAt = time.Now()
	r.s.history[key] = *h
	return true, nil
}

func (r memHistoryRepo) list(match func(model.HistoryOrder) bool) []model.HistoryOrder {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.HistoryOrder
	for _, h := range r.s.history {
		if match(h) {
			out = append(out, h)
		}
	}
	return out
}

func (r memHistoryRepo) ListBySeller(_ context.Context, sellerID uuid.UUID) ([]model.HistoryOrder, error) {
	return r.list(func(h model.HistoryOrder) bool { return h.SellerID == sellerID }), nil
}

func (r memHistoryRepo) ListByBuyer(_ context.Context, buyerID uuid.UUID) ([]model.HistoryOrder, error) {
	return r.list(func(h model.HistoryOrder) bool { return h.BuyerID == buyerID }), nil
}

// --- helpers ---

func (s *memStore) stock(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].Stock
}

func (s *memStore) order(id uuid.UUID) (model.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	return cloneOrder(o), ok
}

func (s *memStore) historyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

func (s *memStore) seedProduct(sellerID uuid.UUID, name string, price int64, stock int) model.Product {
	p := model.Product{
		SellerID: sellerID, Name: name, Description: "about " + name, Category: "general",
		Price: decimal.NewFromInt(price), MainImage: "https://img.example/" + name + ".png",
		Properties: []model.Property{{Key: "size", Value: "m"}}, Stock: stock,
	}
	if err := (memProductRepo{s}).Create(context.Background(), &p); err != nil {
		panic(err)
	}
	return p
}

func (s *memStore) seedAddress(buyerID uuid.UUID) model.Address {
	a := model.Address{BuyerID: buyerID, FullName: "Buyer", Phone: "+252", Street: uuid.NewString(), City: "Mogadishu", Country: "Somalia"}
	if err := (memAddressRepo{s}).Create(context.Background(), &a); err != nil {
		panic(err)
	}
	return a
}

type cartLine struct {
	product  model.Product
	quantity int
}

func line(p model.Product, quantity int) cartLine { return cartLine{product: p, quantity: quantity} }

func (s *memStore) seedCart(buyerID uuid.UUID, lines ...cartLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart := model.Cart{ID: uuid.New(), UserID: buyerID}
	for _, l := range lines {
		p := l.product
		cart.Items = append(cart.Items, model.CartItem{
			ProductID: p.ID, SellerID: p.SellerID, Name: p.Name, Price: p.Price, MainImage: p.MainImage, Quantity: l.quantity,
		})
	}
	s.carts[buyerID] = cart
}

func cloneProduct(p model.Product) model.Product {
	p.Images = slices.Clone(p.Images)
	p.Properties = slices.Clone(p.Properties)
	return p
}

func cloneCart(c model.Cart) model.Cart {
	c.Items = slices.Clone(c.Items)
	return c
}

func cloneOrder(o model.Order) model.Order {
	groups := make([]model.OrderLineGroup, len(o.Groups))
	for i, g := range o.Groups {
		g.Items = slices.Clone(g.Items)
		groups[i] = g
	}
	o.Groups = groups
	return o
}

// --- collaborators ---

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.OrderEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event model.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type memProductCache struct {
	mu          sync.Mutex
	entries     map[uuid.UUID]dto.ProductResponse
	invalidated []uuid.UUID
}

func newMemProductCache() *memProductCache {
	return &memProductCache{entries: map[uuid.UUID]dto.ProductResponse{}}
}

func (c *memProductCache) Get(_ context.Context, id uuid.UUID) (*dto.ProductResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	return &p, true
}

func (c *memProductCache) Set(_ context.Context, p dto.ProductResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[p.ID] = p
}

func (c *memProductCache) Invalidate(_ context.Context, ids ...uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.entries, id)
		c.invalidated = append(c.invalidated, id)
	}
}

type memIdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]uuid.UUID
}

func newMemIdempotencyStore() *memIdempotencyStore {
	return &memIdempotencyStore{keys: map[string]uuid.UUID{}}
}

func (m *memIdempotencyStore) Reserve(_ context.Context, key string) (uuid.UUID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.keys[key]; ok {
		return id, false, nil
	}
	m.keys[key] = uuid.Nil
	return uuid.Nil, true, nil
}

func (m *memIdempotencyStore) Complete(_ context.Context, key string, orderID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = orderID
	return nil
}

func (m *memIdempotencyStore) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type staticTimeline struct {
	records map[uuid.UUID][]model.StatusRecord
}

func (t staticTimeline) Timeline(_ context.Context, orderID uuid.UUID) ([]model.StatusRecord, error) {
	return t.records[orderID], nil
}

// env wires every service against one memStore.
type env struct {
	store     *memStore
	publisher *recordingPublisher
	cache     *memProductCache
	cart      *CartService
	orders    *OrderService
	history   *HistoryService
	products  *ProductService
	addresses *AddressService
}

func newEnv(policy model.TransitionPolicy) *env {
	s := newMemStore()
	pub := &recordingPublisher{}
	cache := newMemProductCache()
	return &env{
		store:     s,
		publisher: pub,
		cache:     cache,
		cart:      NewCartService(memCartRepo{s}, memProductRepo{s}, s),
		orders: NewOrderService(OrderServiceDeps{
			Orders: memOrderRepo{s}, Carts: memCartRepo{s}, Products: memProductRepo{s}, Addresses: memAddressRepo{s},
			Tx: s, Policy: policy, Publisher: pub, Cache: cache, Idempotency: newMemIdempotencyStore(),
		}),
		history:   NewHistoryService(memOrderRepo{s}, memHistoryRepo{s}, s, pub, nil),
		products:  NewProductService(memProductRepo{s}, s, cache),
		addresses: NewAddressService(memAddressRepo{s}),
	}
}

// frozenReads behaves like a repeatable-read transaction that took its snapshot
// before concurrent checkouts committed: plain reads return the frozen rows,
// while locking reads see the latest committed stock.
type frozenReads struct {
	memProductRepo
	frozen map[uuid.UUID]model.Product
}

func freezeProducts(s *memStore) frozenReads {
	snap := s.snapshot()
	return frozenReads{memProductRepo: memProductRepo{s}, frozen: snap.products}
}

func (r frozenReads) GetByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	p, ok := r.frozen[id]
	if !ok {
		return nil, nil
	}
	p = cloneProduct(p)
	return &p, nil
}
