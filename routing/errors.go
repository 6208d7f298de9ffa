package routing

import (
	"errors"
	"fmt"
)

// rejectReason is a stable, matchable reason code for a ConfigRejected
// error.
type rejectReason string

func (e rejectReason) Error() string { return string(e) }
func (e rejectReason) Code() string  { return string(e) }

const (
	ReasonUnknownCluster       rejectReason = "unknown_cluster"
	ReasonBadRegex             rejectReason = "invalid_regexp"
	ReasonBadAction            rejectReason = "invalid_action"
	ReasonDuplicateCatchAll    rejectReason = "duplicate_catch_all_virtual_host"
	ReasonDuplicateDomain      rejectReason = "duplicate_domain"
	ReasonDuplicateWildcard    rejectReason = "duplicate_wildcard_domain"
	ReasonBadWeightedCluster   rejectReason = "invalid_weighted_cluster"
	ReasonClusterHeaderRewrite rejectReason = "cluster_header_with_host_rewrite"
)

// ConfigRejected wraps the first rejection reason encountered while building
// a ConfigSnapshot from a RouteConfiguration. Static builds return it to the
// caller to refuse startup; dynamic (RDS) builds report it as update_failure
// and keep the last-known-good snapshot.
type ConfigRejected struct {
	Reason rejectReason
	Detail string
}

func (e *ConfigRejected) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("config rejected: %s", e.Reason)
	}
	return fmt.Sprintf("config rejected: %s: %s", e.Reason, e.Detail)
}

func (e *ConfigRejected) Unwrap() error { return e.Reason }

func rejectf(reason rejectReason, format string, args ...any) error {
	return &ConfigRejected{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// IsUnknownCluster reports whether err (or anything it wraps) is an
// UnknownCluster rejection.
func IsUnknownCluster(err error) bool {
	var rej *ConfigRejected
	if errors.As(err, &rej) {
		return rej.Reason == ReasonUnknownCluster
	}
	return false
}
