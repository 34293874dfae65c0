package service

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/text/cases"

	"shopledger/backend/internal/apperr"
	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/store"
	"shopledger/backend/internal/xid"
)

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.ClientCustomer, error) {
	p, err := principal(ctx)
	if err != nil {
		return domain.ClientCustomer{}, err
	}
	client, err := s.repo.GetClientByID(ctx, p.ClientID)
	if err != nil {
		return domain.ClientCustomer{}, err
	}
	created, err := s.createCustomer(ctx, *client, domain.CustomerRef{
		Name:    req.Name,
		Phone:   req.Phone,
		Address: req.Address,
		Email:   req.Email,
		GSTIN:   req.GSTIN,
	})
	if err != nil {
		return domain.ClientCustomer{}, err
	}
	return *created, nil
}

func (s *Service) GetCustomer(ctx context.Context, customerID string) (domain.ClientCustomer, error) {
	p, err := principal(ctx)
	if err != nil {
		return domain.ClientCustomer{}, err
	}
	customer, err := s.repo.GetCustomer(ctx, p.ClientID, customerID)
	if err != nil {
		return domain.ClientCustomer{}, notFound(err, "customer", customerID)
	}
	return *customer, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.ClientCustomer, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListCustomers(ctx, p.ClientID)
}

// UpdateCustomer applies the supplied fields, then checks the result against
// the fields the client currently marks mandatory.
func (s *Service) UpdateCustomer(ctx context.Context, customerID string, req domain.CustomerUpdateRequest) (domain.ClientCustomer, error) {
	p, err := principal(ctx)
	if err != nil {
		return domain.ClientCustomer{}, err
	}
	client, err := s.repo.GetClientByID(ctx, p.ClientID)
	if err != nil {
		return domain.ClientCustomer{}, err
	}
	existing, err := s.repo.GetCustomer(ctx, p.ClientID, customerID)
	if err != nil {
		return domain.ClientCustomer{}, notFound(err, "customer", customerID)
	}

	customer := *existing
	if name := trimPtr(req.Name); name != nil {
		if *name == "" {
			return domain.ClientCustomer{}, apperr.Validationf("customer name cannot be empty")
		}
		customer.Name = *name
	}
	if phone := trimPtr(req.Phone); phone != nil {
		customer.Phone = ""
		if *phone != "" {
			normalized, err := normalizePhone(*phone)
			if err != nil {
				return domain.ClientCustomer{}, err
			}
			customer.Phone = normalized
		}
	}
	if v := trimPtr(req.Address); v != nil {
		customer.Address = *v
	}
	if v := trimPtr(req.Email); v != nil {
		customer.Email = *v
	}
	if v := trimPtr(req.GSTIN); v != nil {
		customer.GSTIN = strings.ToUpper(*v)
	}
	if err := checkMandatoryFields(client.CustomerFieldSettings, customer); err != nil {
		return domain.ClientCustomer{}, err
	}
	customer.UpdatedAt = s.now()

	saved, err := s.repo.UpdateCustomer(ctx, customer)
	if err != nil {
		return domain.ClientCustomer{}, err
	}
	return *saved, nil
}

// resolveCustomer finds the invoice customer by id, then phone, then a
// case-folded name match. When nothing matches it returns an unsaved customer
// and fresh=true; the caller stores it with the invoice.
func (s *Service) resolveCustomer(ctx context.Context, client domain.Client, ref domain.CustomerRef) (customer *domain.ClientCustomer, fresh bool, err error) {
	if ref.Empty() {
		return nil, false, apperr.Validationf("customer id, phone or name is required")
	}

	if id := strings.TrimSpace(ref.CustomerID); id != "" {
		customer, err := s.repo.GetCustomer(ctx, client.ID, id)
		if err != nil {
			return nil, false, notFound(err, "customer", id)
		}
		return customer, false, nil
	}

	phone := ""
	if strings.TrimSpace(ref.Phone) != "" {
		normalized, err := normalizePhone(ref.Phone)
		if err != nil {
			return nil, false, err
		}
		phone = normalized
		customer, err := s.repo.FindCustomerByPhone(ctx, client.ID, phone)
		if err == nil {
			return customer, false, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, false, err
		}
	}

	name := strings.TrimSpace(ref.Name)
	if name != "" {
		customers, err := s.repo.ListCustomers(ctx, client.ID)
		if err != nil {
			return nil, false, err
		}
		fold := cases.Fold()
		want := fold.String(name)
		for i := range customers {
			c := customers[i]
			if fold.String(c.Name) != want {
				continue
			}
			// a name match never captures a customer registered under a different phone
			if phone == "" || c.Phone == "" {
				return &c, false, nil
			}
		}
	}

	ref.Phone = phone
	created, err := s.newCustomer(client, ref)
	if err != nil {
		return nil, false, err
	}
	return &created, true, nil
}

func (s *Service) createCustomer(ctx context.Context, client domain.Client, ref domain.CustomerRef) (*domain.ClientCustomer, error) {
	customer, err := s.newCustomer(client, ref)
	if err != nil {
		return nil, err
	}
	return s.repo.CreateCustomer(ctx, customer)
}

// newCustomer builds a validated customer without storing it.
func (s *Service) newCustomer(client domain.Client, ref domain.CustomerRef) (domain.ClientCustomer, error) {
	phone := strings.TrimSpace(ref.Phone)
	if phone != "" {
		normalized, err := normalizePhone(phone)
		if err != nil {
			return domain.ClientCustomer{}, err
		}
		phone = normalized
	}
	name := strings.TrimSpace(ref.Name)
	if name == "" {
		name = phone
	}
	if name == "" {
		return domain.ClientCustomer{}, apperr.Validationf("customer name is required")
	}

	now := s.now()
	customer := domain.ClientCustomer{
		ID:        xid.New("cus"),
		ClientID:  client.ID,
		Name:      name,
		Phone:     phone,
		Address:   strings.TrimSpace(ref.Address),
		Email:     strings.TrimSpace(ref.Email),
		GSTIN:     strings.ToUpper(strings.TrimSpace(ref.GSTIN)),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := checkMandatoryFields(client.CustomerFieldSettings, customer); err != nil {
		return domain.ClientCustomer{}, err
	}
	return customer, nil
}

func checkMandatoryFields(settings domain.CustomerFieldSettings, c domain.ClientCustomer) error {
	missing := make([]string, 0, 3)
	if settings.AddressMandatory && strings.TrimSpace(c.Address) == "" {
		missing = append(missing, "address")
	}
	if settings.EmailMandatory && strings.TrimSpace(c.Email) == "" {
		missing = append(missing, "email")
	}
	if settings.GSTINMandatory && strings.TrimSpace(c.GSTIN) == "" {
		missing = append(missing, "gstin")
	}
	if len(missing) > 0 {
		return apperr.Validationf("customer %s required", strings.Join(missing, ", "))
	}
	return nil
}
