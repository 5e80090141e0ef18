package graph

import (
	"encoding/json"
)

// NodeConfig contains configuration data meant for customizing the functionality
// of a Node.
//
// Values decoded from JSON arrive as float64; the integer getters accept
// them as long as they carry no fraction.
type NodeConfig struct {
	config map[string]interface{}
}

func NewNodeConfig(cfg map[string]interface{}) NodeConfig {
	return NodeConfig{config: cfg}
}

func (c *NodeConfig) Has(key string) bool {
	_, ok := c.config[key]
	return ok
}

func (c *NodeConfig) Get(key string) interface{} {
	return c.config[key]
}

func (c *NodeConfig) GetString(key string) string {
	if val, ok := c.config[key]; ok {
		if v, ok := val.(string); ok {
			return v
		}
	}
	return ""
}

func (c *NodeConfig) GetStringMap(key string) map[string]interface{} {
	val, ok := c.config[key]
	if !ok {
		return nil
	}
	if m, ok := val.(map[string]interface{}); ok {
		return m
	}
	return nil
}

func (c *NodeConfig) GetInt(key string) int {
	return int(c.GetInt64(key))
}

func (c *NodeConfig) GetInt64(key string) int64 {
	if val, ok := c.config[key]; ok {
		switch t := val.(type) {
		case int:
			return int64(t)
		case int64:
			return t
		case int32:
			return int64(t)
		case int8:
			return int64(t)
		case float64:
			if t == float64(int64(t)) {
				return int64(t)
			}
		}
	}
	return 0
}

func (c *NodeConfig) GetFloat64(key string) float64 {
	if val, ok := c.config[key]; ok {
		switch t := val.(type) {
		case float64:
			return t
		case float32:
			return float64(t)
		case int:
			return float64(t)
		case int64:
			return float64(t)
		}
	}
	return 0
}

func (c *NodeConfig) GetBool(key string) bool {
	if val, ok := c.config[key]; ok {
		if v, ok := val.(bool); ok {
			return v
		}
	}
	return false
}

func (c *NodeConfig) Set(key string, value interface{}) {
	if c.config == nil {
		c.config = make(map[string]interface{})
	}
	c.config[key] = value
}

func (c *NodeConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.config)
}

func (c *NodeConfig) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &c.config)
}
