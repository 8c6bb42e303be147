// Package netutil builds the outbound HTTP client shared by the upstream
// library and the playlist passthrough, honouring the DNS order policy.
package netutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"slices"
	"strings"
	"time"
)

// Order decides which address family is dialed first when a name resolves
// to both.
type Order string

const (
	OrderVerbatim  Order = "verbatim"
	OrderIPv4First Order = "ipv4first"
	OrderIPv6First Order = "ipv6first"
)

func ParseOrder(s string) (Order, error) {
	switch o := Order(strings.ToLower(strings.TrimSpace(s))); o {
	case "":
		return OrderVerbatim, nil
	case OrderVerbatim, OrderIPv4First, OrderIPv6First:
		return o, nil
	}
	return "", fmt.Errorf("unknown dns order %q", s)
}

// Sort reorders addrs in place according to the policy. Verbatim keeps the
// resolver's order, the others move one family to the front and keep the
// relative order inside each family.
func Sort(addrs []netip.Addr, order Order) {
	if order == OrderVerbatim {
		return
	}

	rank := func(a netip.Addr) int {
		is4 := a.Unmap().Is4()
		if (order == OrderIPv4First) == is4 {
			return 0
		}
		return 1
	}
	slices.SortStableFunc(addrs, func(a, b netip.Addr) int {
		return rank(a) - rank(b)
	})
}

type dialer struct {
	order    Order
	dialer   *net.Dialer
	resolver *net.Resolver
}

func (d *dialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if d.order == OrderVerbatim {
		return d.dialer.DialContext(ctx, network, address)
	}

	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}

	addrs, err := d.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, err
	}
	Sort(addrs, d.order)

	var errs []error
	for _, addr := range addrs {
		conn, err := d.dialer.DialContext(ctx, network, net.JoinHostPort(addr.Unmap().String(), port))
		if err == nil {
			return conn, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}

	if len(errs) == 0 {
		return nil, fmt.Errorf("no addresses for %s", host)
	}
	return nil, errors.Join(errs...)
}

// NewHTTPClient returns a client whose transport dials according to order.
// A zero timeout means no client-side limit.
func NewHTTPClient(order Order, timeout time.Duration) *http.Client {
	d := &dialer{
		order:    order,
		dialer:   &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second},
		resolver: net.DefaultResolver,
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = d.DialContext

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
