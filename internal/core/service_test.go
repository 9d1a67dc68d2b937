package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/issuerdesk/internal/schema"
	"github.com/JonMunkholm/issuerdesk/internal/store"
	"github.com/JonMunkholm/issuerdesk/internal/tabular"
)

var (
	alice = Principal{Username: "alice", Role: RoleCustodian}
	bob   = Principal{Username: "bob", Role: RoleCustodian}
	ivan  = Principal{Username: "ivan", Role: RoleIssuer}

	fixedNow = time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
)

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time { return c.t }

func newTestService(t *testing.T) (*Service, *store.FileStore, *testClock) {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	clock := &testClock{t: fixedNow}
	return NewService(st, Options{MaxConcurrent: 2, MaxWait: time.Second, Now: clock.Now}), st, clock
}

func issuerMapping() Mapping {
	return Mapping{Fields: map[string]string{
		schema.IssuerName:           "issuer_name",
		schema.ContactNameField(1):  "contact_name_1",
		schema.ContactEmailField(1): "contact_email_1",
	}}
}

func securityMapping() Mapping {
	return Mapping{Fields: map[string]string{
		schema.SecurityID:   "security_id",
		schema.ISIN:         "ISIN",
		schema.IssuerRef:    "issuer",
		schema.Description:  "description",
		schema.Currency:     "currency",
		schema.MaturityDate: "maturity_date",
	}}
}

func securityRow(id, isin, issuer string) tabular.Row {
	return tabular.Row{
		"security_id": id,
		"ISIN":        isin,
		"issuer":      issuer,
		"description": "Senior note",
	}
}

func seedIssuer(t *testing.T, s *Service, p Principal, name string) {
	t.Helper()
	rows := Rows{{"issuer_name": name, "contact_name_1": "Ann", "contact_email_1": "ann@acme.com"}}
	_, err := s.ProcessIssuerRows(context.Background(), rows, issuerMapping(), p)
	require.NoError(t, err)
}

func TestProcessIssuerRows(t *testing.T) {
	s, st, _ := newTestService(t)
	ctx := context.Background()

	rows := Rows{
		{"issuer_name": "Acme", "contact_name_1": "Ann", "contact_email_1": "ann@acme.com"},
		{"issuer_name": "", "contact_name_1": "Bo", "contact_email_1": "bo@x.com"},
	}

	res, err := s.ProcessIssuerRows(ctx, rows, issuerMapping(), alice)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, []string{"Row 3: Missing issuer_name"}, res.ErrorStrings())

	var stored Issuers
	require.NoError(t, st.Load(ctx, issuersDoc, &stored))
	require.Contains(t, stored, "Acme")
	assert.Equal(t, "alice", stored["Acme"].Custodian)
	assert.Equal(t, []Contact{{Name: "Ann", Email: "ann@acme.com"}}, stored["Acme"].Contacts)
}

func TestProcessIssuerRows_Idempotent(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	rows := Rows{{"issuer_name": "Acme", "contact_name_1": "Ann", "contact_email_1": "ann@acme.com"}}

	_, err := s.ProcessIssuerRows(ctx, rows, issuerMapping(), alice)
	require.NoError(t, err)
	first, err := s.Issuers(ctx)
	require.NoError(t, err)

	_, err = s.ProcessIssuerRows(ctx, rows, issuerMapping(), alice)
	require.NoError(t, err)
	second, err := s.Issuers(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestProcessIssuerRows_LaterRowReplacesContactsAndCustomFields(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	m := issuerMapping()
	m.Custom = map[string]string{"Region": "region"}

	rows := Rows{
		{"issuer_name": "Acme", "contact_name_1": "Ann", "contact_email_1": "ann@acme.com", "Region": "EU"},
		{"issuer_name": "Acme", "contact_name_1": "Cy", "contact_email_1": "cy@acme.com", "Region": ""},
	}
	res, err := s.ProcessIssuerRows(ctx, rows, m, alice)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)

	issuers, err := s.Issuers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Contact{{Name: "Cy", Email: "cy@acme.com"}}, issuers["Acme"].Contacts)
	assert.Empty(t, issuers["Acme"].CustomFields)
}

func TestProcessIssuerRows_InvalidContactEmailStillCounts(t *testing.T) {
	s, _, _ := newTestService(t)
	rows := Rows{{"issuer_name": "Acme", "contact_name_1": "Ann", "contact_email_1": "not-an-email"}}

	res, err := s.ProcessIssuerRows(context.Background(), rows, issuerMapping(), alice)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, KindInvalidFormat, res.Errors[0].Kind)
	assert.Equal(t, "Row 2: Invalid email 'not-an-email' for contact 1", res.Errors[0].Error())

	issuers, err := s.Issuers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, issuers["Acme"].Contacts)
}

func TestProcessIssuerRows_OtherCustodiansIssuer(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	seedIssuer(t, s, alice, "Acme")

	rows := Rows{
		{"issuer_name": "Globex"},
		{"issuer_name": "Acme"},
	}
	_, err := s.ProcessIssuerRows(ctx, rows, issuerMapping(), bob)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorizedPrincipal)
	assert.Contains(t, err.Error(), "Acme")

	issuers, err := s.Issuers(ctx)
	require.NoError(t, err)
	assert.NotContains(t, issuers, "Globex", "a rejected file must change nothing")
	assert.Equal(t, "alice", issuers["Acme"].Custodian)
}

func TestProcessIssuerRows_UnmappedRequiredField(t *testing.T) {
	s, _, _ := newTestService(t)
	m := Mapping{Fields: map[string]string{schema.ContactNameField(1): "contact_name_1"}}

	_, err := s.ProcessIssuerRows(context.Background(), Rows{{"contact_name_1": "Ann"}}, m, alice)
	var fe *FileError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindMissingRequiredField, fe.Kind)
	assert.Equal(t, []string{"issuer_name"}, fe.Fields)
	assert.Equal(t, "Missing required field mapping: issuer_name", fe.Error())
}

func TestProcessIssuerRows_NoRowsProcessed(t *testing.T) {
	s, st, _ := newTestService(t)
	ctx := context.Background()

	_, err := s.ProcessIssuerRows(ctx, Rows{{"issuer_name": "", "contact_name_1": "Ann"}}, issuerMapping(), alice)
	var fe *FileError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindNoRowsProcessed, fe.Kind)
	assert.Equal(t, "No issuers were processed due to validation errors: Row 2: Missing issuer_name", fe.Error())

	var stored Issuers
	assert.ErrorIs(t, st.Load(ctx, issuersDoc, &stored), store.ErrNotFound)
}

func TestProcessIssuerRows_RequiresCustodian(t *testing.T) {
	s, _, _ := newTestService(t)
	_, err := s.ProcessIssuerRows(context.Background(), Rows{{"issuer_name": "Acme"}}, issuerMapping(), ivan)
	assert.ErrorIs(t, err, ErrUnauthorizedPrincipal)
}

func TestProcessSecurityRows(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	seedIssuer(t, s, alice, "Acme")

	row := securityRow("SEC1", "US0378331005", "Acme")
	row["currency"] = " eur "
	row["maturity_date"] = "03/15/2024"

	res, err := s.ProcessSecurityRows(ctx, Rows{row}, securityMapping(), alice)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Empty(t, res.Errors)

	secs, err := s.Securities(ctx)
	require.NoError(t, err)
	sec := secs["SEC1"]
	assert.Equal(t, "EUR", sec.Currency)
	assert.Equal(t, "2024-03-15", sec.MaturityDate)
	assert.Equal(t, []Contact{{Name: "Ann", Email: "ann@acme.com"}}, sec.IssuerContacts)
	assert.True(t, fixedNow.Equal(sec.CreatedAt))
	assert.True(t, fixedNow.Equal(sec.UpdatedAt))
}

func TestProcessSecurityRows_UnpaddedMaturityDate(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	seedIssuer(t, s, alice, "Acme")

	row := securityRow("SEC1", "US0378331005", "Acme")
	row["maturity_date"] = "3/5/2024"

	res, err := s.ProcessSecurityRows(ctx, Rows{row}, securityMapping(), alice)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)

	secs, err := s.Securities(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-05", secs["SEC1"].MaturityDate)
}

func TestProcessSecurityRows_DefaultsCurrency(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	seedIssuer(t, s, alice, "Acme")

	_, err := s.ProcessSecurityRows(ctx, Rows{securityRow("SEC1", "US0378331005", "Acme")}, securityMapping(), alice)
	require.NoError(t, err)

	secs, err := s.Securities(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultCurrency, secs["SEC1"].Currency)
	assert.Empty(t, secs["SEC1"].MaturityDate)
}

func TestProcessSecurityRows_RowRules(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(tabular.Row)
		wantKind ErrorKind
		wantMsg  string
	}{
		{
			name:     "missing ISIN",
			mutate:   func(r tabular.Row) { r["ISIN"] = "  " },
			wantKind: KindMissingField,
			wantMsg:  "Row 2: Missing ISIN",
		},
		{
			name:     "long security_id",
			mutate:   func(r tabular.Row) { r["security_id"] = "ABCDEFGHIJKLMN" },
			wantKind: KindLengthExceeded,
			wantMsg:  "Row 2: security_id exceeds 13 characters",
		},
		{
			name:     "lower-case ISIN",
			mutate:   func(r tabular.Row) { r["ISIN"] = "us0378331005" },
			wantKind: KindInvalidFormat,
			wantMsg:  "Row 2: Invalid ISIN format. Must be 2 letters followed by 10 alphanumeric characters",
		},
		{
			name:     "unknown issuer",
			mutate:   func(r tabular.Row) { r["issuer"] = "Globex" },
			wantKind: KindUnknownReference,
			wantMsg:  "Row 2: Issuer 'Globex' not found in uploaded issuers",
		},
		{
			name:     "long description",
			mutate:   func(r tabular.Row) { r["description"] = strings.Repeat("é", 257) },
			wantKind: KindLengthExceeded,
			wantMsg:  "Row 2: Description exceeds 256 characters",
		},
		{
			name:     "bad currency",
			mutate:   func(r tabular.Row) { r["currency"] = "EURO" },
			wantKind: KindInvalidFormat,
			wantMsg:  "Row 2: Currency must be 3 characters",
		},
		{
			name:     "bad maturity date",
			mutate:   func(r tabular.Row) { r["maturity_date"] = "15.03.2024" },
			wantKind: KindInvalidFormat,
			wantMsg:  "Row 2: Invalid maturity date format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _ := newTestService(t)
			ctx := context.Background()
			seedIssuer(t, s, alice, "Acme")

			good := securityRow("GOOD", "US0378331005", "Acme")
			bad := securityRow("SEC1", "US0378331005", "Acme")
			tt.mutate(bad)

			res, err := s.ProcessSecurityRows(ctx, Rows{bad, good}, securityMapping(), alice)
			require.NoError(t, err)
			assert.Equal(t, 1, res.Processed)
			require.Len(t, res.Errors, 1)
			assert.Equal(t, tt.wantKind, res.Errors[0].Kind)
			assert.Equal(t, tt.wantMsg, res.Errors[0].Error())

			secs, err := s.Securities(ctx)
			require.NoError(t, err)
			assert.NotContains(t, secs, "SEC1")
		})
	}
}

func TestProcessSecurityRows_DescriptionAtLimit(t *testing.T) {
	s, _, _ := newTestService(t)
	seedIssuer(t, s, alice, "Acme")

	row := securityRow("SEC1", "US0378331005", "Acme")
	row["description"] = strings.Repeat("é", schema.MaxDescriptionLen)

	res, err := s.ProcessSecurityRows(context.Background(), Rows{row}, securityMapping(), alice)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
}

func TestProcessSecurityRows_IssuerAddedLater(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	rows := Rows{securityRow("SEC1", "US0378331005", "Acme")}

	_, err := s.ProcessSecurityRows(ctx, rows, securityMapping(), alice)
	var fe *FileError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindNoRowsProcessed, fe.Kind)
	require.Len(t, fe.RowErrors, 1)
	assert.Equal(t, KindUnknownReference, fe.RowErrors[0].Kind)

	seedIssuer(t, s, alice, "Acme")
	res, err := s.ProcessSecurityRows(ctx, rows, securityMapping(), alice)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
}

func TestProcessSecurityRows_ReplaceKeepsCreatedAt(t *testing.T) {
	s, _, clock := newTestService(t)
	ctx := context.Background()
	seedIssuer(t, s, alice, "Acme")
	m := securityMapping()
	m.Custom = map[string]string{"Rating": "rating"}

	first := securityRow("SEC1", "US0378331005", "Acme")
	first["Rating"] = "AA"
	_, err := s.ProcessSecurityRows(ctx, Rows{first}, m, alice)
	require.NoError(t, err)

	clock.t = fixedNow.Add(time.Hour)
	second := securityRow("SEC1", "US0378331005", "Acme")
	second["description"] = "Replaced"
	_, err = s.ProcessSecurityRows(ctx, Rows{second}, m, alice)
	require.NoError(t, err)

	secs, err := s.Securities(ctx)
	require.NoError(t, err)
	sec := secs["SEC1"]
	assert.Equal(t, "Replaced", sec.Description)
	assert.Empty(t, sec.CustomFields)
	assert.True(t, fixedNow.Equal(sec.CreatedAt))
	assert.True(t, fixedNow.Add(time.Hour).Equal(sec.UpdatedAt))
}

func TestNoRowsProcessedMessage(t *testing.T) {
	errs := make([]RowError, 7)
	for i := range errs {
		errs[i] = rowError(i+2, KindMissingField, schema.IssuerName, "Missing issuer_name")
	}

	fe := noRowsProcessedError("issuers", errs)
	assert.True(t, strings.HasPrefix(fe.Error(), "No issuers were processed due to validation errors: Row 2: Missing issuer_name; "))
	assert.True(t, strings.HasSuffix(fe.Error(), "Row 6: Missing issuer_name and 2 more errors"))

	assert.Equal(t, "No valid securities found in the file", noRowsProcessedError("securities", nil).Error())
}

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name    string
		p       Principal
		wantErr bool
	}{
		{"custodian", alice, false},
		{"issuer role", ivan, true},
		{"no username", Principal{Role: RoleCustodian}, true},
		{"unknown role", Principal{Username: "x", Role: "admin"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.p)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrUnauthorizedPrincipal)
		})
	}
}

func TestListIssuers(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	seedIssuer(t, s, alice, "Zeta")
	seedIssuer(t, s, alice, "Acme")
	seedIssuer(t, s, bob, "Globex")

	all, err := s.ListIssuers(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Acme", all[0].Name)

	mine, err := s.ListIssuers(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Globex", mine[0].Name)
}

func TestFindSecurities(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	seedIssuer(t, s, alice, "Acme")
	seedIssuer(t, s, alice, "Globex")

	rows := Rows{
		securityRow("B", "US0378331005", "Acme"),
		securityRow("A", "GB0002634946", "Globex"),
	}
	_, err := s.ProcessSecurityRows(ctx, rows, securityMapping(), alice)
	require.NoError(t, err)

	all, err := s.FindSecurities(ctx, SecurityFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "A", all[0].SecurityID)

	byIssuer, err := s.FindSecurities(ctx, SecurityFilter{Issuer: "Acme"})
	require.NoError(t, err)
	require.Len(t, byIssuer, 1)
	assert.Equal(t, "B", byIssuer[0].SecurityID)

	_, err = s.FindSecurities(ctx, SecurityFilter{ISIN: "nope"})
	require.Error(t, err)
	assert.Equal(t, "REQ001", MapError(err).Code)
}

type failingStore struct {
	store.Store
	saveErr error
}

func (f failingStore) Save(context.Context, string, any) error { return f.saveErr }

func TestProcessIssuerRows_StoreFailure(t *testing.T) {
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	s := NewService(failingStore{Store: st, saveErr: errors.New("disk full")}, Options{})

	_, err = s.ProcessIssuerRows(context.Background(), Rows{{"issuer_name": "Acme"}}, issuerMapping(), alice)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStore)
	assert.Equal(t, "STORE001", MapError(err).Code)
}
