package workspace

const starterMarkup = `<div class="container">
  <h1>Hello Fiesta! 🪅</h1>
  <p>Ask the AI to change this page.</p>
  <button id="confetti-btn">Party Time!</button>
  <div id="log-output"></div>
</div>`

const starterStyle = `body {
  font-family: "Inter", sans-serif;
  background: #111;
  color: white;
  display: flex;
  justify-content: center;
  align-items: center;
  height: 100vh;
  margin: 0;
}
.container {
  text-align: center;
  padding: 3rem;
  border: 2px solid #ec4899;
  border-radius: 1rem;
  background: #1f1f1f;
  box-shadow: 0 10px 25px -5px rgba(236, 72, 153, 0.4);
}
button {
  background: #ec4899;
  border: none;
  padding: 0.75rem 1.5rem;
  color: white;
  border-radius: 0.5rem;
  cursor: pointer;
  font-weight: 800;
  margin-top: 1.5rem;
  transition: all 0.2s;
}
button:hover {
  background: #db2777;
  transform: scale(1.05);
}`

const starterScript = `import confetti from "https://esm.sh/canvas-confetti";

console.log("System initialized...");

document.getElementById("confetti-btn").addEventListener("click", () => {
  console.log("Party button clicked!");
  confetti({
    particleCount: 100,
    spread: 70,
    origin: { y: 0.6 }
  });
});`

// StarterProject returns the project a fresh workspace begins with.
func StarterProject() *Collection {
	return NewCollection(
		NewDocument(RootMarkup, starterMarkup),
		NewDocument(RootStyle, starterStyle),
		NewDocument(RootScript, starterScript),
	)
}
