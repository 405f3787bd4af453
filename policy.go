package greeter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// ResourcePolicy is the subset of a resource-based policy statement that
// maps onto lambda:AddPermission.
type ResourcePolicy struct {
	Principals              []string
	SourceArnCondition      *string
	SourceAccountCondition  *string
	PrincipalOrgIdCondition *string
}

type policyDocument struct {
	Statement json.RawMessage `json:"Statement"`
}

type policyStatement struct {
	Principal json.RawMessage                    `json:"Principal"`
	Condition map[string]map[string]stringOrList `json:"Condition"`
}

// stringOrList accepts both "x" and ["x", "y"], as IAM does.
type stringOrList []string

func (s *stringOrList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*s = []string{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

func ParseResourcePolicy(policy string) (ResourcePolicy, error) {
	var resourcePolicy ResourcePolicy
	var doc policyDocument
	if err := json.Unmarshal([]byte(policy), &doc); err != nil {
		return resourcePolicy, fmt.Errorf("parsing failure for resource policy: %w", err)
	}
	statement, err := firstStatement(doc.Statement)
	if err != nil {
		return resourcePolicy, err
	}
	principals, err := parsePrincipal(statement.Principal)
	if err != nil {
		return resourcePolicy, err
	}
	resourcePolicy.Principals = principals

	if v, ok := lookupCondition(statement.Condition, "ArnLike", "AWS:SourceArn"); ok {
		resourcePolicy.SourceArnCondition = aws.String(v)
	} else if v, ok := lookupCondition(statement.Condition, "ArnEquals", "AWS:SourceArn"); ok {
		resourcePolicy.SourceArnCondition = aws.String(v)
	}
	if v, ok := lookupCondition(statement.Condition, "StringEquals", "AWS:SourceAccount"); ok {
		resourcePolicy.SourceAccountCondition = aws.String(v)
	}
	if v, ok := lookupCondition(statement.Condition, "StringEquals", "aws:PrincipalOrgID"); ok {
		resourcePolicy.PrincipalOrgIdCondition = aws.String(v)
	}
	return resourcePolicy, nil
}

func firstStatement(raw json.RawMessage) (policyStatement, error) {
	var statement policyStatement
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return statement, fmt.Errorf("statement not found in resource policy")
	}
	if raw[0] == '[' {
		var statements []policyStatement
		if err := json.Unmarshal(raw, &statements); err != nil {
			return statement, fmt.Errorf("parsing failure for resource policy statement: %w", err)
		}
		if len(statements) == 0 {
			return statement, fmt.Errorf("statement not found in resource policy")
		}
		return statements[0], nil
	}
	if err := json.Unmarshal(raw, &statement); err != nil {
		return statement, fmt.Errorf("parsing failure for resource policy statement: %w", err)
	}
	return statement, nil
}

func parsePrincipal(raw json.RawMessage) ([]string, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("principal not found in resource policy")
	}
	var wildcard string
	if err := json.Unmarshal(raw, &wildcard); err == nil {
		return []string{wildcard}, nil
	}
	var principal struct {
		Service stringOrList `json:"Service"`
		AWS     stringOrList `json:"AWS"`
	}
	if err := json.Unmarshal(raw, &principal); err != nil {
		return nil, fmt.Errorf("parsing failure for principal: %w", err)
	}
	principals := append([]string{}, principal.Service...)
	principals = append(principals, principal.AWS...)
	if len(principals) == 0 {
		return nil, fmt.Errorf("principal not found in resource policy")
	}
	return principals, nil
}

// lookupCondition matches operator and key case-insensitively: IAM
// condition keys are not case sensitive.
func lookupCondition(conditions map[string]map[string]stringOrList, operator, key string) (string, bool) {
	for op, values := range conditions {
		if !strings.EqualFold(op, operator) {
			continue
		}
		for k, v := range values {
			if strings.EqualFold(k, key) && len(v) > 0 {
				return v[0], true
			}
		}
	}
	return "", false
}

// ParseManagedPolicies splits a comma separated list of managed policies,
// expanding bare names to AWS managed policy ARNs.
func ParseManagedPolicies(policy string) []string {
	policy = removeQuotes(removeWhitespace(policy))
	if policy == "" {
		return []string{}
	}
	var expandedPolicyArns []string
	for _, p := range strings.Split(policy, ",") {
		if p == "" {
			continue
		}
		if strings.HasPrefix(p, "arn:") {
			expandedPolicyArns = append(expandedPolicyArns, p)
		} else {
			expandedPolicyArns = append(expandedPolicyArns, "arn:aws:iam::aws:policy/"+p)
		}
	}
	return expandedPolicyArns
}

func ParseInlinePolicy(policy string) (string, error) {
	if strings.TrimSpace(policy) == "" {
		return "", fmt.Errorf("inline policy is empty")
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(policy), &doc); err != nil {
		return "", fmt.Errorf("parsing failure for inline policy: %w", err)
	}
	buf := new(bytes.Buffer)
	if err := json.Compact(buf, []byte(policy)); err != nil {
		return "", fmt.Errorf("parsing failure for inline policy: %w", err)
	}
	return buf.String(), nil
}

func removeQuotes(s string) string {
	s = strings.ReplaceAll(s, `"`, "")
	return strings.ReplaceAll(s, `'`, "")
}

func removeWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
