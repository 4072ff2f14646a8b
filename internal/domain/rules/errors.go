package rules

import "errors"

var ErrRuleNotFound = errors.New("rule not found")
