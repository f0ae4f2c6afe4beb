package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"
)

const baseURL = "http://localhost:8080"

func main() {
	client := &http.Client{Timeout: 10 * time.Second}

	token := register(client)

	payload := map[string]interface{}{
		"language": "python",
		"code":     "import sys\n\ndef fib(n):\n    a, b = 0, 1\n    for _ in range(n):\n        a, b = b, a + b\n    return a\n\nprint(fib(30))",
	}
	jsonData, _ := json.Marshal(payload)

	totalRequests := 100
	ratePerSecond := 5

	ticker := time.NewTicker(time.Second / time.Duration(ratePerSecond))
	defer ticker.Stop()

	var wg sync.WaitGroup

	for i := 1; i <= totalRequests; i++ {
		<-ticker.C

		wg.Add(1)

		go func(n int) {
			defer wg.Done()

			req, err := http.NewRequest("POST", baseURL+"/submissions", bytes.NewBuffer(jsonData))
			if err != nil {
				fmt.Printf("Request %d: error creating request: %v\n", n, err)
				return
			}

			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+token)

			resp, err := client.Do(req)
			if err != nil {
				fmt.Printf("Request %d: error sending request: %v\n", n, err)
				return
			}
			defer resp.Body.Close()

			bodyBytes, err := io.ReadAll(resp.Body)
			if err != nil {
				log.Fatal(err)
			}

			fmt.Printf("Request %d -> Status: %d, content: %s\n", n, resp.StatusCode, string(bodyBytes))
		}(i)
	}

	wg.Wait()
	fmt.Println("All requests completed")
}

func register(client *http.Client) string {
	body, _ := json.Marshal(map[string]string{
		"name":     "loadtest",
		"email":    fmt.Sprintf("loadtest-%d@example.com", time.Now().UnixNano()),
		"username": fmt.Sprintf("loadtest-%d", time.Now().UnixNano()),
		"password": "loadtest-password",
	})

	resp, err := client.Post(baseURL+"/register", "application/json", bytes.NewBuffer(body))
	if err != nil {
		log.Fatalf("register request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		log.Fatalf("register failed with status %d", resp.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Fatalf("register response decode failed: %v", err)
	}
	return out.Token
}
