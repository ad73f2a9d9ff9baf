/*
Copyright 2024 Paychain Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package paychain

// FraudPolicy flags transfers for review. It annotates and never blocks.
type FraudPolicy interface {
	IsSuspicious(amount, dailyLimit, balance int64) bool
}

// FraudPolicyFunc adapts an ordinary function to FraudPolicy.
type FraudPolicyFunc func(amount, dailyLimit, balance int64) bool

func (f FraudPolicyFunc) IsSuspicious(amount, dailyLimit, balance int64) bool {
	return f(amount, dailyLimit, balance)
}

// DefaultFraudPolicy flags a transfer above 80% of the daily limit, above the limit
// itself, or above the available balance. The 80% threshold is compared as
// 5*amount > 4*limit to stay in integers.
var DefaultFraudPolicy FraudPolicy = FraudPolicyFunc(func(amount, dailyLimit, balance int64) bool {
	if amount > dailyLimit || amount > balance {
		return true
	}
	return exceedsFourFifths(amount, dailyLimit)
})

func exceedsFourFifths(amount, limit int64) bool {
	const maxSafe = (1<<63 - 1) / 5
	if amount > maxSafe || limit > maxSafe {
		// amount <= limit here, so compare amount/limit > 4/5 by division.
		return amount-limit/5*4 > (limit%5)*4/5
	}
	return 5*amount > 4*limit
}
